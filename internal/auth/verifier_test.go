package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/domain/rbac"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

const (
	testKeyID  = "test-key-ad"
	testIssuer = "https://keycloak.test/realms/aanexa"
	rootID     = "6f1c0b6e-0000-4000-8000-000000000001"
	opsID      = "6f1c0b6e-0000-4000-8000-000000000002"
)

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// signToken подписывает JWT ключом key.
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return s
}

// userClaims: claims access token Keycloak. ttl < 0: просроченный токен.
func userClaims(sub string, ttl time.Duration) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"iss":   testIssuer,
		"exp":   jwt.NewNumericDate(time.Now().Add(ttl)),
		"iat":   jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		// Роли из токена должны игнорироваться
		"realm_access": map[string]any{"roles": []string{"super_admin"}},
	}
}

// mockAccounts: мок Directory с подсчётом обращений.
type mockAccounts struct {
	accounts map[string]*model.AdminAccount
	err      error
	calls    atomic.Int32
}

func (m *mockAccounts) GetByID(_ context.Context, id string) (*model.AdminAccount, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// mockRefresher: мок refresh grant.
type mockRefresher struct {
	fn    func(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error)
	calls atomic.Int32
}

func (m *mockRefresher) Refresh(ctx context.Context, refreshToken string) (*keycloak.TokenSet, error) {
	m.calls.Add(1)
	return m.fn(ctx, refreshToken)
}

type verifierFixture struct {
	key       *rsa.PrivateKey
	accounts  *mockAccounts
	refresher *mockRefresher
	sessions  *SessionManager
	verifier  *SessionVerifier
}

func newFixture(t *testing.T) *verifierFixture {
	t.Helper()
	key := generateTestKey(t)
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	f := &verifierFixture{
		key: key,
		accounts: &mockAccounts{accounts: map[string]*model.AdminAccount{
			rootID: {ID: rootID, Email: "root@example.com", Role: model.RoleSuperAdmin, Status: model.StatusActive},
			opsID:  {ID: opsID, Email: "ops@example.com", Role: model.RoleAdmin, Status: model.StatusActive},
		}},
		refresher: &mockRefresher{fn: func(context.Context, string) (*keycloak.TokenSet, error) {
			return nil, errors.New("refresh не ожидался")
		}},
	}
	f.sessions, _ = NewSessionManager("test-key", false)
	tokens := NewTokenVerifierWithKeyfunc(kf, testIssuer, 0, testLogger())
	f.verifier = NewSessionVerifier(tokens, f.accounts, f.refresher, f.sessions, testLogger())
	return f
}

func (f *verifierFixture) token(t *testing.T, sub string, ttl time.Duration) string {
	return signToken(t, f.key, userClaims(sub, ttl))
}

func TestAuthenticate_ValidBearer(t *testing.T) {
	f := newFixture(t)

	res, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: f.token(t, opsID, time.Hour)}, rbac.RequireAdmin)
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}
	if res.Principal.AccountID != opsID || res.Principal.Role != model.RoleAdmin {
		t.Errorf("Principal = %+v", res.Principal)
	}
	if res.Refreshed != nil {
		t.Error("refresh не должен выполняться для валидного токена")
	}
}

// TestAuthenticate_ForgedTokenSkipsDirectory: токен с чужой подписью отклоняется
// без обращения к Directory.
func TestAuthenticate_ForgedTokenSkipsDirectory(t *testing.T) {
	f := newFixture(t)
	forger := generateTestKey(t)
	forged := signToken(t, forger, userClaims(rootID, time.Hour))

	_, err := f.verifier.Authenticate(context.Background(), Credentials{Bearer: forged}, rbac.RequireSuperAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("ожидался ErrUnauthenticated, получен %v", err)
	}
	if f.accounts.calls.Load() != 0 {
		t.Errorf("Directory вызван %d раз для поддельного токена", f.accounts.calls.Load())
	}
}

// TestAuthenticate_StaleRoleRejected: роль берётся из Directory, а не из токена.
func TestAuthenticate_StaleRoleRejected(t *testing.T) {
	f := newFixture(t)

	res, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: f.token(t, opsID, time.Hour)}, rbac.RequireSuperAdmin)
	if !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("ожидался ErrInsufficientRole, получен %v", err)
	}
	if !errors.Is(err, ErrForbidden) {
		t.Error("ErrInsufficientRole должен оборачивать ErrForbidden")
	}
	if res == nil || res.Principal.Role != model.RoleAdmin {
		t.Errorf("Principal должен отражать Directory: %+v", res)
	}
}

func TestAuthenticate_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	f.accounts.accounts[rootID].Status = model.StatusInactive

	_, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: f.token(t, rootID, time.Hour)}, rbac.RequireAdmin)
	if !errors.Is(err, ErrAccountInactive) || !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидался ErrAccountInactive, получен %v", err)
	}
}

func TestResolve_InactiveAccountWithoutRequirement(t *testing.T) {
	f := newFixture(t)
	f.accounts.accounts[rootID].Status = model.StatusInactive

	res, err := f.verifier.Resolve(context.Background(), Credentials{Bearer: f.token(t, rootID, time.Hour)})
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if res.Principal.Status != model.StatusInactive {
		t.Errorf("Status = %s, ожидался inactive", res.Principal.Status)
	}
}

func TestAuthenticate_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: f.token(t, "not-in-directory", time.Hour)}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnknownAccount) || !errors.Is(err, ErrForbidden) {
		t.Errorf("ожидался ErrUnknownAccount, получен %v", err)
	}
}

func TestAuthenticate_DirectoryError(t *testing.T) {
	f := newFixture(t)
	f.accounts.err = errors.New("connection refused")

	_, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: f.token(t, rootID, time.Hour)}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("ожидался ErrUpstream, получен %v", err)
	}
}

func TestAuthenticate_NoCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Authenticate(context.Background(), Credentials{}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
	}
}

func TestAuthenticate_WrongIssuer(t *testing.T) {
	f := newFixture(t)
	claims := userClaims(rootID, time.Hour)
	claims["iss"] = "https://evil.test/realms/aanexa"

	_, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: signToken(t, f.key, claims)}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
	}
}

// TestAuthenticate_TransparentRefresh: просроченная cookie-сессия обновляется
// и запрос проходит с исходным субъектом.
func TestAuthenticate_TransparentRefresh(t *testing.T) {
	f := newFixture(t)
	fresh := f.token(t, rootID, time.Hour)
	f.refresher.fn = func(_ context.Context, rt string) (*keycloak.TokenSet, error) {
		if rt != "refresh-1" {
			t.Errorf("refresh token = %q", rt)
		}
		return &keycloak.TokenSet{AccessToken: fresh, RefreshToken: "refresh-2", Expiry: time.Now().Add(time.Hour)}, nil
	}

	sess := &Session{Subject: rootID, AccessToken: f.token(t, rootID, -time.Minute), RefreshToken: "refresh-1"}
	res, err := f.verifier.Authenticate(context.Background(), Credentials{Session: sess}, rbac.RequireSuperAdmin)
	if err != nil {
		t.Fatalf("Authenticate() ошибка: %v", err)
	}
	if res.Refreshed == nil {
		t.Fatal("ожидалась обновлённая сессия")
	}
	if res.Refreshed.AccessToken != fresh || res.Refreshed.RefreshToken != "refresh-2" || res.Refreshed.Subject != rootID {
		t.Errorf("Refreshed = %+v", res.Refreshed)
	}
	if f.refresher.calls.Load() != 1 {
		t.Errorf("refresh вызван %d раз", f.refresher.calls.Load())
	}
}

// TestAuthenticate_RefreshThenForbidden: cookie ротируется даже при отказе в доступе.
func TestAuthenticate_RefreshThenForbidden(t *testing.T) {
	f := newFixture(t)
	fresh := f.token(t, opsID, time.Hour)
	f.refresher.fn = func(context.Context, string) (*keycloak.TokenSet, error) {
		return &keycloak.TokenSet{AccessToken: fresh, RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}, nil
	}

	sess := &Session{Subject: opsID, AccessToken: f.token(t, opsID, -time.Minute), RefreshToken: "r1"}
	res, err := f.verifier.Authenticate(context.Background(), Credentials{Session: sess}, rbac.RequireSuperAdmin)
	if !errors.Is(err, ErrInsufficientRole) {
		t.Fatalf("ожидался ErrInsufficientRole, получен %v", err)
	}
	if res == nil || res.Refreshed == nil {
		t.Error("обновлённая сессия должна вернуться вместе с отказом")
	}
}

func TestAuthenticate_ExpiredBearerNotRefreshed(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Authenticate(context.Background(),
		Credentials{Bearer: f.token(t, rootID, -time.Minute)}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
	}
	if f.refresher.calls.Load() != 0 {
		t.Error("Bearer-токен не должен обновляться")
	}
}

func TestAuthenticate_RefreshFailure(t *testing.T) {
	f := newFixture(t)
	f.refresher.fn = func(context.Context, string) (*keycloak.TokenSet, error) {
		return nil, keycloak.ErrInvalidGrant
	}

	sess := &Session{Subject: rootID, AccessToken: f.token(t, rootID, -time.Minute), RefreshToken: "revoked"}
	_, err := f.verifier.Authenticate(context.Background(), Credentials{Session: sess}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
	}
}

func TestAuthenticate_RefreshSubjectMismatch(t *testing.T) {
	f := newFixture(t)
	other := f.token(t, opsID, time.Hour)
	f.refresher.fn = func(context.Context, string) (*keycloak.TokenSet, error) {
		return &keycloak.TokenSet{AccessToken: other, RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}, nil
	}

	sess := &Session{Subject: rootID, AccessToken: f.token(t, rootID, -time.Minute), RefreshToken: "r1"}
	_, err := f.verifier.Authenticate(context.Background(), Credentials{Session: sess}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
	}
}

// TestAuthenticate_ExpiredForgedNotRefreshed: просроченный токен с чужой подписью
// не запускает refresh.
func TestAuthenticate_ExpiredForgedNotRefreshed(t *testing.T) {
	f := newFixture(t)
	forged := signToken(t, generateTestKey(t), userClaims(rootID, -time.Minute))

	sess := &Session{Subject: rootID, AccessToken: forged, RefreshToken: "r1"}
	_, err := f.verifier.Authenticate(context.Background(), Credentials{Session: sess}, rbac.RequireAdmin)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
	}
	if f.refresher.calls.Load() != 0 || f.accounts.calls.Load() != 0 {
		t.Error("поддельный токен не должен вызывать refresh или Directory")
	}
}

func TestExtract(t *testing.T) {
	f := newFixture(t)

	cookieRec := httptest.NewRecorder()
	if err := f.sessions.SetSessionCookie(cookieRec, &Session{Subject: rootID, AccessToken: "from-cookie"}); err != nil {
		t.Fatal(err)
	}
	sessionCookie := cookieRec.Result().Cookies()[0]

	t.Run("bearer имеет приоритет", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		r.Header.Set("Authorization", "Bearer abc")
		r.AddCookie(sessionCookie)
		creds, err := f.verifier.Extract(r)
		if err != nil || creds.Bearer != "abc" || creds.Session != nil {
			t.Errorf("Extract() = %+v, %v", creds, err)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		r.AddCookie(sessionCookie)
		creds, err := f.verifier.Extract(r)
		if err != nil || creds.Session == nil || creds.Session.AccessToken != "from-cookie" {
			t.Errorf("Extract() = %+v, %v", creds, err)
		}
	})

	t.Run("неверный формат заголовка", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		if _, err := f.verifier.Extract(r); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
		}
	})

	t.Run("повреждённый cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
		if _, err := f.verifier.Extract(r); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("ожидался ErrUnauthenticated, получен %v", err)
		}
	})

	t.Run("нет учётных данных", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		creds, err := f.verifier.Extract(r)
		if err != nil || creds.Present() {
			t.Errorf("Extract() = %+v, %v", creds, err)
		}
	})
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("пустой контекст не должен содержать Principal")
	}
	p := model.Principal{AccountID: rootID, Role: model.RoleSuperAdmin}
	got, ok := PrincipalFromContext(WithPrincipal(context.Background(), p))
	if !ok || got != p {
		t.Errorf("PrincipalFromContext() = %+v, %v", got, ok)
	}
}
