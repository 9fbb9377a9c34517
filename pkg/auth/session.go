package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/slapcommerce/core-sub014/pkg/domain"
)

// Session is the authenticated state carried by a token.
type Session struct {
	Principal string    `json:"principal"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Sessions issues and verifies HMAC-signed session tokens. Tokens are
// self-contained: payload and signature, no server-side session store.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewSessions creates a token authority from the shared secret.
func NewSessions(secret []byte, ttl time.Duration, clock func() time.Time) *Sessions {
	if clock == nil {
		clock = time.Now
	}
	return &Sessions{secret: secret, ttl: ttl, clock: clock}
}

// Issue creates a signed token for the given principal.
func (s *Sessions) Issue(principal string) (string, error) {
	if principal == "" {
		return "", domain.Validationf("principal is required")
	}
	now := s.clock()
	payload, err := json.Marshal(Session{
		Principal: principal,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + s.sign(body), nil
}

// Verify checks the token signature and expiry and returns the session.
func (s *Sessions) Verify(token string) (Session, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Session{}, domain.Unauthorizedf("malformed session token")
	}
	if !hmac.Equal([]byte(s.sign(body)), []byte(sig)) {
		return Session{}, domain.Unauthorizedf("invalid session token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Session{}, domain.Unauthorizedf("malformed session token")
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, domain.Unauthorizedf("malformed session token")
	}
	if !s.clock().Before(session.ExpiresAt) {
		return Session{}, domain.Unauthorizedf("session expired")
	}
	return session, nil
}

func (s *Sessions) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
