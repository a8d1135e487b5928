package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/auth/authtest"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
)

const (
	rootID = "0d7f6a30-0000-4000-8000-000000000001"
	opsID  = "0d7f6a30-0000-4000-8000-000000000002"
)

type authFixture struct {
	signer   *authtest.Signer
	accounts *authtest.Accounts
	verifier *auth.SessionVerifier
	mw       *SessionAuth
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	signer := authtest.NewSigner(t)
	accounts := authtest.NewAccounts(
		authtest.Account(rootID, "root@example.com", model.RoleSuperAdmin),
		authtest.Account(opsID, "ops@example.com", model.RoleAdmin),
	)
	verifier := authtest.NewVerifier(t, signer, accounts)
	return &authFixture{
		signer:   signer,
		accounts: accounts,
		verifier: verifier,
		mw:       NewSessionAuth(verifier, authtest.Logger()),
	}
}

// serve прогоняет запрос через Require(req) и возвращает ответ и Principal из контекста.
func (f *authFixture) serve(t *testing.T, req rbac.Requirement, r *http.Request) (*httptest.ResponseRecorder, *model.Principal) {
	t.Helper()
	var seen *model.Principal
	h := f.mw.Require(req)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("Principal не найден в контексте")
		}
		seen = &p
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec, seen
}

// cookieRequest строит запрос с зашифрованной session cookie.
func (f *authFixture) cookieRequest(t *testing.T, sess *auth.Session) *http.Request {
	t.Helper()
	value, err := f.verifier.Sessions().Encrypt(sess)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value})
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ответа не JSON: %s", rec.Body.String())
	}
	return body.Error.Code
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestRequire_BearerGranted(t *testing.T) {
	f := newAuthFixture(t)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/admins", nil)
	r.Header.Set("Authorization", "Bearer "+f.signer.Token(t, rootID, time.Minute))

	rec, p := f.serve(t, rbac.RequireSuperAdmin, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if p.AccountID != rootID || p.Role != model.RoleSuperAdmin {
		t.Errorf("principal = %+v", p)
	}
}

func TestRequire_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		sub        string
		req        rbac.Requirement
		header     string
		prepare    func(f *authFixture)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "без учётных данных",
			req:        rbac.RequireAdmin,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHENTICATED",
		},
		{
			name:       "неверная схема Authorization",
			req:        rbac.RequireAdmin,
			header:     "Basic cm9vdDpwYXNz",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHENTICATED",
		},
		{
			name:       "admin на операции super_admin",
			sub:        opsID,
			req:        rbac.RequireSuperAdmin,
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name: "отключённая учётная запись",
			sub:  rootID,
			req:  rbac.RequireAdmin,
			prepare: func(f *authFixture) {
				a := authtest.Account(rootID, "root@example.com", model.RoleSuperAdmin)
				a.Status = model.StatusInactive
				f.accounts.Put(a)
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "ACCOUNT_INACTIVE",
		},
		{
			name:       "нет записи в Directory",
			sub:        "0d7f6a30-0000-4000-8000-0000000000ff",
			req:        rbac.RequireAdmin,
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name: "роль понижена после выпуска токена",
			sub:  rootID,
			req:  rbac.RequireSuperAdmin,
			prepare: func(f *authFixture) {
				f.accounts.Put(authtest.Account(rootID, "root@example.com", model.RoleAdmin))
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			if tt.prepare != nil {
				tt.prepare(f)
			}
			r := httptest.NewRequest(http.MethodGet, "/api/v1/admins", nil)
			switch {
			case tt.header != "":
				r.Header.Set("Authorization", tt.header)
			case tt.sub != "":
				r.Header.Set("Authorization", "Bearer "+f.signer.Token(t, tt.sub, time.Minute))
			}

			rec, p := f.serve(t, tt.req, r)
			if rec.Code != tt.wantStatus {
				t.Fatalf("ожидался статус %d, получен %d, тело: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("ожидался код %s, получен %s", tt.wantCode, code)
			}
			if p != nil {
				t.Error("обработчик вызван при отказе")
			}
		})
	}
}

// TestRequire_RefreshRotatesCookie: просроченный access token в cookie
// обновляется прозрачно, новая cookie уходит в ответе.
func TestRequire_RefreshRotatesCookie(t *testing.T) {
	f := newAuthFixture(t)
	r := f.cookieRequest(t, &auth.Session{
		Subject:      opsID,
		AccessToken:  f.signer.Token(t, opsID, -time.Minute),
		RefreshToken: "refresh:" + opsID,
	})

	rec, p := f.serve(t, rbac.RequireAdmin, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if p.AccountID != opsID {
		t.Errorf("principal = %+v", p)
	}

	c := sessionCookie(rec)
	if c == nil || c.MaxAge < 0 {
		t.Fatal("обновлённая cookie не установлена")
	}
	sess, err := f.verifier.Sessions().Decrypt(c.Value)
	if err != nil {
		t.Fatalf("новая cookie не расшифровывается: %v", err)
	}
	if sess.Subject != opsID || sess.IsExpired() {
		t.Errorf("новая сессия = %+v", sess)
	}
}

// TestRequire_RefreshThenForbidden: cookie обновляется даже при отказе по роли.
func TestRequire_RefreshThenForbidden(t *testing.T) {
	f := newAuthFixture(t)
	r := f.cookieRequest(t, &auth.Session{
		Subject:      opsID,
		AccessToken:  f.signer.Token(t, opsID, -time.Minute),
		RefreshToken: "refresh:" + opsID,
	})

	rec, _ := f.serve(t, rbac.RequireSuperAdmin, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ожидался статус 403, получен %d", rec.Code)
	}
	if c := sessionCookie(rec); c == nil || c.MaxAge < 0 {
		t.Error("cookie не обновлена при 403")
	}
}

// TestRequire_RefreshFailureClearsCookie: неудачный refresh удаляет cookie.
func TestRequire_RefreshFailureClearsCookie(t *testing.T) {
	f := newAuthFixture(t)
	r := f.cookieRequest(t, &auth.Session{
		Subject:      opsID,
		AccessToken:  f.signer.Token(t, opsID, -time.Minute),
		RefreshToken: "revoked",
	})

	rec, _ := f.serve(t, rbac.RequireAdmin, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидался статус 401, получен %d", rec.Code)
	}
	if c := sessionCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Error("cookie не удалена")
	}
}

func TestRequire_CorruptCookieCleared(t *testing.T) {
	f := newAuthFixture(t)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "not-encrypted"})

	rec, _ := f.serve(t, rbac.RequireAdmin, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидался статус 401, получен %d", rec.Code)
	}
	if c := sessionCookie(rec); c == nil || c.MaxAge >= 0 {
		t.Error("повреждённая cookie не удалена")
	}
}
