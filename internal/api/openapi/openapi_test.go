package openapi

import (
	"context"
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}

	for _, path := range []string{
		"/api/v1/auth/login",
		"/api/v1/auth/logout",
		"/api/v1/auth/me",
		"/api/v1/admins",
		"/api/v1/admins/{id}",
		"/api/v1/profile",
		"/api/v1/profile/password",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("в контракте нет пути %s", path)
		}
	}
}
