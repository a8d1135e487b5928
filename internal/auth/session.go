// session.go: сессия администратора в cookie, зашифрованном AES-256-GCM.
package auth

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hkdf"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// SessionCookieName: имя cookie сессии (UI и API).
	SessionCookieName = "aanexa_session"
	// SessionCookieMaxAge: срок жизни cookie в секундах (12 часов).
	// Фактически сессия живёт, пока действителен refresh token Keycloak.
	SessionCookieMaxAge = 12 * 60 * 60

	// sessionFormat входит в associated data GCM вместе с именем cookie:
	// значение другого формата или из другой cookie не расшифровывается.
	sessionFormat = "v1"
	// expirySkew: access token считается истёкшим за это время до exp.
	expirySkew = 30 * time.Second
	// sessionKeyInfo: контекст HKDF для ключа из строкового секрета.
	sessionKeyInfo = "aanexa-admin session cookie"
)

// ErrInvalidSession: cookie не расшифровывается или содержит недопустимые данные.
var ErrInvalidSession = errors.New("недействительная сессия")

// Session: сессия администратора.
// Роль и статус в сессии не хранятся: они читаются из Directory на каждый запрос.
type Session struct {
	// Subject: sub access token (Keycloak user ID = ID учётной записи).
	Subject string
	// AccessToken: JWT access token Keycloak.
	AccessToken string
	// RefreshToken: refresh token для прозрачного обновления.
	RefreshToken string
	// ExpiresAt: exp access token (Unix).
	ExpiresAt int64
}

// IsExpired сообщает, что access token истёк или истечёт в пределах expirySkew.
func (s *Session) IsExpired() bool {
	return !time.Now().Add(expirySkew).Before(time.Unix(s.ExpiresAt, 0))
}

// sessionWire: содержимое cookie. Набор полей закрыт: при чтении любые
// другие поля (роль, статус, email) отвергаются.
type sessionWire struct {
	Sub string `json:"sub"`
	AT  string `json:"at,omitempty"`
	RT  string `json:"rt,omitempty"`
	Exp int64  `json:"exp,omitempty"`
}

// SessionManager шифрует Session в cookie и обратно.
type SessionManager struct {
	aead   cipher.AEAD
	ad     []byte
	secure bool
}

// NewSessionManager создаёт SessionManager.
//
// secret: base64 от 32 байт используется как ключ AES-256 напрямую, любая
// другая строка превращается в ключ через HKDF-SHA256. Пустой secret: случайный
// ключ процесса, сессии не переживают рестарт.
func NewSessionManager(secret string, secure bool) (*SessionManager, error) {
	key, err := sessionKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}
	return &SessionManager{
		aead:   aead,
		ad:     []byte(SessionCookieName + "/" + sessionFormat),
		secure: secure,
	}, nil
}

func sessionKey(secret string) ([]byte, error) {
	if secret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
		return key, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == 32 {
		return raw, nil
	}
	key, err := hkdf.Key(sha256.New, []byte(secret), nil, sessionKeyInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("ошибка вывода ключа сессии: %w", err)
	}
	return key, nil
}

// Encrypt возвращает зашифрованное значение cookie. Сессия без Subject не шифруется.
func (sm *SessionManager) Encrypt(s *Session) (string, error) {
	if s == nil || s.Subject == "" {
		return "", fmt.Errorf("%w: нет subject", ErrInvalidSession)
	}
	plaintext, err := json.Marshal(sessionWire{Sub: s.Subject, AT: s.AccessToken, RT: s.RefreshToken, Exp: s.ExpiresAt})
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	nonce := make([]byte, sm.aead.NonceSize(), sm.aead.NonceSize()+len(plaintext)+sm.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sm.aead.Seal(nonce, nonce, plaintext, sm.ad)), nil
}

// Decrypt расшифровывает значение cookie. Все ошибки оборачивают ErrInvalidSession.
func (sm *SessionManager) Decrypt(value string) (*Session, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(sealed) < sm.aead.NonceSize() {
		return nil, fmt.Errorf("%w: неверная кодировка", ErrInvalidSession)
	}
	nonce, ciphertext := sealed[:sm.aead.NonceSize()], sealed[sm.aead.NonceSize():]
	plaintext, err := sm.aead.Open(nil, nonce, ciphertext, sm.ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	var w sessionWire
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if w.Sub == "" {
		return nil, fmt.Errorf("%w: нет subject", ErrInvalidSession)
	}
	return &Session{Subject: w.Sub, AccessToken: w.AT, RefreshToken: w.RT, ExpiresAt: w.Exp}, nil
}

// SetSessionCookie записывает сессию в cookie ответа.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, s *Session) error {
	value, err := sm.Encrypt(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, sm.cookie(value, SessionCookieMaxAge))
	return nil
}

// GetSessionFromRequest читает сессию из cookie запроса.
// Нет cookie: nil, nil. Повреждённая или чужая cookie: ErrInvalidSession.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*Session, error) {
	c, err := r.Cookie(SessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	return sm.Decrypt(c.Value)
}

// ClearSessionCookie удаляет cookie сессии.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, sm.cookie("", -1))
}

// cookie: общие атрибуты. Path "/": cookie нужна и /admin, и /api/v1.
func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
