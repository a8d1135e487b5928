package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
)

func newProfileFixture(t *testing.T) (*sessionsFixture, *ProfileService) {
	t.Helper()
	f := newSessionsFixture(t)
	return f, NewProfileService(f.accountsFixture.svc, f.issuer, f.identities, testLogger())
}

func TestUpdateOwnProfile(t *testing.T) {
	f, svc := newProfileFixture(t)

	updated, err := svc.UpdateOwnProfile(context.Background(), f.caller(plainC), model.AccountUpdate{
		FullName: ptr("Carol"),
		Email:    ptr("Carol@Example.com"),
	})
	if err != nil {
		t.Fatalf("UpdateOwnProfile() ошибка: %v", err)
	}
	if updated.FullName != "Carol" || updated.Email != "carol@example.com" {
		t.Errorf("updated = %+v", updated)
	}
	if got := f.identities.users[plainC].Email; got != "carol@example.com" {
		t.Errorf("email в Keycloak = %q", got)
	}
}

func TestUpdateOwnProfile_RejectsPrivilegeFields(t *testing.T) {
	f, svc := newProfileFixture(t)
	super := model.RoleSuperAdmin

	_, err := svc.UpdateOwnProfile(context.Background(), f.caller(plainC), model.AccountUpdate{Role: &super})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидался ErrValidation, получен %v", err)
	}
	if c := f.dir.get(plainC); c.Role != model.RoleAdmin {
		t.Error("роль изменена через профиль")
	}
}

func TestChangePassword(t *testing.T) {
	f, svc := newProfileFixture(t)
	current := "password-" + plainC[:4]

	if err := svc.ChangePassword(context.Background(), f.caller(plainC), current, "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword() ошибка: %v", err)
	}
	if f.identities.passwords[plainC] != "brand-new-pass" {
		t.Error("пароль не изменён")
	}
	if len(f.issuer.logouts) != 1 {
		t.Errorf("проверочная сессия не закрыта: %v", f.issuer.logouts)
	}
}

func TestChangePassword_Errors(t *testing.T) {
	f, svc := newProfileFixture(t)
	current := "password-" + plainC[:4]

	tests := []struct {
		name    string
		current string
		next    string
	}{
		{"неверный текущий пароль", "wrong", "brand-new-pass"},
		{"короткий новый пароль", current, "short"},
		{"совпадает с текущим", current, current},
		{"пустой текущий", "", "brand-new-pass"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ChangePassword(context.Background(), f.caller(plainC), tt.current, tt.next)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ожидался ErrValidation, получен %v", err)
			}
		})
	}
	if f.identities.passwords[plainC] != current {
		t.Error("пароль изменён при ошибке")
	}
}
