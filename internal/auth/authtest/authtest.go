// Пакет authtest: вспомогательные средства тестов, проверяющих сессии:
// RSA-ключ с JWKS, выпуск токенов и SessionVerifier поверх Directory в памяти.
package authtest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Dibo68/aanexa-admin/internal/auth"
	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/keycloak"
	"github.com/Dibo68/aanexa-admin/internal/repository"
)

const (
	// KeyID: kid тестового ключа.
	KeyID = "authtest-key"
	// Issuer: issuer тестовых токенов.
	Issuer = "https://keycloak.test/realms/aanexa"
	// SessionKey: ключ шифрования session cookie в тестах.
	SessionKey = "authtest-session-secret-0123456789"
)

// Signer выпускает RS256 токены, которые принимает Verifier.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner генерирует RSA-ключ.
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return &Signer{key: key}
}

// JWKS возвращает JWKS JSON с публичным ключом.
func (s *Signer) JWKS() json.RawMessage {
	pub := &s.key.PublicKey
	data, _ := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": KeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
	return data
}

// Token выпускает access token для sub. ttl < 0: просроченный токен.
func (s *Signer) Token(t testing.TB, sub string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": sub,
		"iss": Issuer,
		"exp": jwt.NewNumericDate(time.Now().Add(ttl)),
		"iat": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	token.Header["kid"] = KeyID
	raw, err := token.SignedString(s.key)
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return raw
}

// TokenSet: пара токенов Keycloak для sub.
func (s *Signer) TokenSet(t testing.TB, sub string) *keycloak.TokenSet {
	t.Helper()
	return &keycloak.TokenSet{
		AccessToken:  s.Token(t, sub, 5*time.Minute),
		RefreshToken: "refresh:" + sub,
		Expiry:       time.Now().Add(5 * time.Minute),
	}
}

// TokenVerifier возвращает auth.TokenVerifier, доверяющий ключу Signer.
func (s *Signer) TokenVerifier(t testing.TB) *auth.TokenVerifier {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(s.JWKS())
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return auth.NewTokenVerifierWithKeyfunc(kf, Issuer, 0, Logger())
}

// Refresher: refresh grant, выпускающий токены тем же Signer.
// Refresh token имеет вид "refresh:<sub>".
type Refresher struct {
	Signer *Signer
	T      testing.TB
}

// Refresh реализует auth.TokenRefresher.
func (r *Refresher) Refresh(_ context.Context, refreshToken string) (*keycloak.TokenSet, error) {
	sub, ok := strings.CutPrefix(refreshToken, "refresh:")
	if !ok || sub == "" {
		return nil, keycloak.ErrInvalidGrant
	}
	return r.Signer.TokenSet(r.T, sub), nil
}

// Accounts: Directory в памяти для auth.AccountResolver.
type Accounts struct {
	mu       sync.Mutex
	accounts map[string]model.AdminAccount
}

// NewAccounts создаёт Accounts с заданными записями.
func NewAccounts(accounts ...model.AdminAccount) *Accounts {
	a := &Accounts{accounts: make(map[string]model.AdminAccount)}
	for _, acc := range accounts {
		a.accounts[acc.ID] = acc
	}
	return a
}

// Put добавляет или заменяет запись.
func (a *Accounts) Put(acc model.AdminAccount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[acc.ID] = acc
}

// GetByID реализует auth.AccountResolver.
func (a *Accounts) GetByID(_ context.Context, id string) (*model.AdminAccount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &acc, nil
}

// Sessions создаёт SessionManager с тестовым ключом.
func Sessions(t testing.TB) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(SessionKey, false)
	if err != nil {
		t.Fatal(err)
	}
	return sm
}

// NewVerifier собирает SessionVerifier из Signer, Directory и refresh grant.
func NewVerifier(t testing.TB, s *Signer, accounts auth.AccountResolver) *auth.SessionVerifier {
	t.Helper()
	return auth.NewSessionVerifier(s.TokenVerifier(t), accounts, &Refresher{Signer: s, T: t}, Sessions(t), Logger())
}

// Account строит активную учётную запись.
func Account(id, email string, role model.Role) model.AdminAccount {
	now := time.Now().UTC()
	return model.AdminAccount{
		ID:        id,
		Email:     email,
		FullName:  email,
		Role:      role,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Logger: logger, отбрасывающий вывод.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
