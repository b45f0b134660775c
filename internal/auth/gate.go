// Package auth implements the shared-secret header check applied before any
// request is forwarded.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"relay-proxy-go/internal/config"
)

// HeaderName is the request header carrying the shared secret. It is matched
// case-insensitively and never forwarded upstream.
const HeaderName = "header_auth"

var (
	// ErrMissingHeader is returned when authentication is enforced and the request has no header_auth.
	ErrMissingHeader = errors.New("missing header_auth in request headers")
	// ErrInvalidEncoding is returned when the header_auth value is not valid UTF-8.
	ErrInvalidEncoding = errors.New("invalid header_auth value")
	// ErrMismatch is returned when header_auth does not equal the configured secret.
	ErrMismatch = errors.New("header_auth does not match the configured secret")
)

// Gate decides whether an inbound request may proceed.
type Gate struct {
	secret *string
}

// NewGate creates a Gate from the loaded configuration.
func NewGate(cfg *config.Config) *Gate {
	return New(cfg.SharedSecret())
}

// New creates a Gate enforcing secret. A nil secret allows every request.
func New(secret *string) *Gate {
	if secret != nil {
		s := *secret
		secret = &s
	}
	return &Gate{secret: secret}
}

// Enabled reports whether a secret is enforced.
func (g *Gate) Enabled() bool {
	return g != nil && g.secret != nil
}

// Check returns nil when the request is authorized, or one of ErrMissingHeader,
// ErrInvalidEncoding, ErrMismatch.
func (g *Gate) Check(header http.Header) error {
	if !g.Enabled() {
		return nil
	}

	value, ok := lookup(header)
	if !ok {
		return ErrMissingHeader
	}
	if !utf8.ValidString(value) {
		return ErrInvalidEncoding
	}
	if subtle.ConstantTimeCompare([]byte(value), []byte(*g.secret)) != 1 {
		return ErrMismatch
	}
	return nil
}

// lookup returns the first header_auth value regardless of key casing.
func lookup(header http.Header) (string, bool) {
	for name, values := range header {
		if strings.EqualFold(name, HeaderName) && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}

// Reason returns a short metric label for a Check error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	default:
		return "other"
	}
}
