// Package csrf implements stateless, session-bound anti-forgery tokens.
//
// A token is base64(<session_id>:<unix-seconds>:<hmac-sha256>) where the MAC is
// computed over "<session_id>:<unix-seconds>". The signature is the fixed-width
// tail of the decoded blob, so the split never depends on separator search in
// binary data.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const sep = ':'

// ErrInvalidSessionID is returned by Generate for ids that could make the
// message ambiguous.
var ErrInvalidSessionID = errors.New("csrf: invalid session id")

// Verification outcomes. They never leave the package; Verify folds them into a bool.
var (
	errMissingToken    = errors.New("missing token")
	errMalformed       = errors.New("malformed token")
	errBadSignature    = errors.New("bad signature")
	errExpired         = errors.New("token expired")
	errFromFuture      = errors.New("token from the future")
	errSessionMismatch = errors.New("session mismatch")
)

var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidSessionID reports whether id can be bound into a token.
func ValidSessionID(id string) bool { return sessionIDRe.MatchString(id) }

// Guard generates and verifies CSRF tokens with one secret.
// It is immutable after construction and safe for concurrent use.
type Guard struct {
	secret []byte
	now    func() time.Time
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard constructs a Guard. The secret is copied.
func NewGuard(secret []byte, opts ...Option) (*Guard, error) {
	if len(secret) == 0 {
		return nil, errors.New("csrf: empty secret")
	}
	g := &Guard{secret: append([]byte(nil), secret...), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Generate returns a token bound to sessionID and the current time.
func (g *Guard) Generate(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", ErrInvalidSessionID
	}
	msg := make([]byte, 0, len(sessionID)+24+sha256.Size)
	msg = append(msg, sessionID...)
	msg = append(msg, sep)
	msg = strconv.AppendInt(msg, g.now().Unix(), 10)

	sig := g.sign(msg)
	blob := append(msg, sep)
	blob = append(blob, sig...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Verify reports whether token was issued for sessionID by this Guard no more
// than maxAge ago. Every failure yields false.
func (g *Guard) Verify(token, sessionID string, maxAge time.Duration) bool {
	return g.check(token, sessionID, maxAge) == nil
}

func (g *Guard) check(token, sessionID string, maxAge time.Duration) error {
	if token == "" {
		return errMissingToken
	}
	raw, err := base64.StdEncoding.Strict().DecodeString(token)
	if err != nil {
		return errMalformed
	}
	// message ":" signature, signature is exactly sha256.Size bytes
	if len(raw) < sha256.Size+2 || raw[len(raw)-sha256.Size-1] != sep {
		return errMalformed
	}
	msg := raw[:len(raw)-sha256.Size-1]
	sig := raw[len(raw)-sha256.Size:]

	if !hmac.Equal(sig, g.sign(msg)) {
		return errBadSignature
	}

	i := strings.LastIndexByte(string(msg), sep)
	if i <= 0 {
		return errMalformed
	}
	sid, tsField := string(msg[:i]), string(msg[i+1:])
	ts, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return errMalformed
	}

	age := g.now().Unix() - ts
	if age < 0 {
		return errFromFuture
	}
	if age > int64(maxAge/time.Second) {
		return errExpired
	}
	if subtle.ConstantTimeCompare([]byte(sid), []byte(sessionID)) != 1 {
		return errSessionMismatch
	}
	return nil
}

func (g *Guard) sign(msg []byte) []byte {
	m := hmac.New(sha256.New, g.secret)
	m.Write(msg)
	return m.Sum(nil)
}

// Reason returns a short log label for a failed verification. It exists for
// diagnostics only and must not be surfaced to clients.
func (g *Guard) Reason(token, sessionID string, maxAge time.Duration) string {
	switch err := g.check(token, sessionID, maxAge); {
	case err == nil:
		return "ok"
	case errors.Is(err, errMissingToken):
		return "missing_header"
	case errors.Is(err, errBadSignature):
		return "bad_signature"
	case errors.Is(err, errExpired), errors.Is(err, errFromFuture):
		return "expired"
	case errors.Is(err, errSessionMismatch):
		return "session_mismatch"
	default:
		return "malformed"
	}
}
