package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
)

const (
	// CSRFSessionKey is where the token lives in the browser session.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField carries the token on plain form posts.
	CSRFFormField = "csrf_token"
	// CSRFHeader carries the token on fetch-driven section updates.
	CSRFHeader = "X-CSRF-Token"
)

const csrfNonceSize = 16

// CSRFManager issues and verifies per-session CSRF tokens. A token is a
// random nonce followed by its HMAC over the session ID, so a token copied
// from another session never verifies.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager keyed by secret.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken returns the session's token, issuing one on first use.
func (m *CSRFManager) EnsureToken(_ context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	if token := sess.Get(CSRFSessionKey); token != "" {
		return token, nil
	}
	return m.Rotate(sess)
}

// Rotate replaces the session's token. Called when the signed-in identity
// changes so a token seen before sign-in stops working.
func (m *CSRFManager) Rotate(sess *Session) (string, error) {
	if sess == nil {
		return "", errors.New("session missing")
	}
	nonce := make([]byte, csrfNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(append(nonce, m.sign(sess.ID, nonce)...))
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken checks token against the session's issued token and its
// binding to the session ID.
func (m *CSRFManager) VerifyToken(_ context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := sess.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= csrfNonceSize {
		return ErrCSRFTokenMismatch
	}
	if !hmac.Equal(raw[csrfNonceSize:], m.sign(sess.ID, raw[:csrfNonceSize])) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

// TokenFromRequest reads the form field first, then the header.
func TokenFromRequest(r *http.Request) string {
	if token := r.PostFormValue(CSRFFormField); token != "" {
		return token
	}
	return r.Header.Get(CSRFHeader)
}

func (m *CSRFManager) sign(sessionID string, nonce []byte) []byte {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write(nonce)
	return mac.Sum(nil)
}
