// Package token issues and verifies HMAC-signed JWT access tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Callers must not expose the distinction to clients.
var (
	ErrMalformedToken      = errors.New("malformed token")
	ErrBadSignature        = errors.New("bad signature")
	ErrExpired             = errors.New("token expired")
	ErrAlgorithmNotAllowed = errors.New("algorithm not allowed")
)

// Algorithm is one of the supported HMAC-SHA2 signing algorithms.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// ParseAlgorithm maps a configured name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(name)
	if a.method() == nil {
		return "", fmt.Errorf("unsupported algorithm %q", name)
	}
	return a, nil
}

func (a Algorithm) method() *jwt.SigningMethodHMAC {
	switch a {
	case HS256:
		return jwt.SigningMethodHS256
	case HS384:
		return jwt.SigningMethodHS384
	case HS512:
		return jwt.SigningMethodHS512
	default:
		return nil
	}
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Extra holds caller-supplied claims other than sub, iat and exp.
	Extra map[string]any
}

// Authority signs and verifies access tokens with a single secret and algorithm.
// It is immutable after construction and safe for concurrent use.
type Authority struct {
	secret []byte
	alg    Algorithm
	issuer string
	now    func() time.Time
}

// Option customizes an Authority.
type Option func(*Authority)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(iss string) Option {
	return func(a *Authority) { a.issuer = iss }
}

// NewAuthority constructs an Authority. The secret is copied.
func NewAuthority(secret []byte, alg Algorithm, opts ...Option) (*Authority, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty secret")
	}
	if alg.method() == nil {
		return nil, fmt.Errorf("token: unsupported algorithm %q", alg)
	}
	a := &Authority{
		secret: append([]byte(nil), secret...),
		alg:    alg,
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Algorithm reports the signing algorithm, which is also the only one Verify accepts.
func (a *Authority) Algorithm() Algorithm { return a.alg }

// Issue signs a token for subject valid for ttl. Reserved claims (sub, iat, exp, iss)
// always override values in claims.
func (a *Authority) Issue(subject string, claims map[string]any, ttl time.Duration) (string, error) {
	raw, _, err := a.IssueClaims(subject, claims, ttl)
	return raw, err
}

// IssueClaims is Issue that also returns the iat and exp it signed, taken
// from the Authority's clock.
func (a *Authority) IssueClaims(subject string, claims map[string]any, ttl time.Duration) (string, Claims, error) {
	if subject == "" {
		return "", Claims{}, errors.New("token: empty subject")
	}
	if ttl <= 0 {
		return "", Claims{}, errors.New("token: non-positive ttl")
	}

	now := a.now().Truncate(time.Second)
	exp := now.Add(ttl).Truncate(time.Second)
	mc := make(jwt.MapClaims, len(claims)+4)
	for k, v := range claims {
		mc[k] = v
	}
	mc["sub"] = subject
	mc["iat"] = now.Unix()
	mc["exp"] = exp.Unix()
	if a.issuer != "" {
		mc["iss"] = a.issuer
	}

	tok := jwt.NewWithClaims(a.alg.method(), mc)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: sign: %w", err)
	}
	extra := make(map[string]any, len(mc))
	for k, v := range mc {
		switch k {
		case "sub", "iat", "exp":
		default:
			extra[k] = v
		}
	}
	return signed, Claims{Subject: subject, IssuedAt: now, ExpiresAt: exp, Extra: extra}, nil
}

// Verify checks algorithm, signature and expiry and returns the decoded claims.
// The error wraps exactly one of the package sentinels.
func (a *Authority) Verify(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
		// one spelling per signature: no unused trailing bits
		jwt.WithStrictDecoding(),
	)

	mc := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, mc, a.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrMalformedToken
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrMalformedToken
	}
	out := &Claims{Subject: sub, ExpiresAt: exp.Time, Extra: map[string]any{}}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	for k, v := range mc {
		switch k {
		case "sub", "iat", "exp":
		default:
			out.Extra[k] = v
		}
	}
	return out, nil
}

// keyFunc enforces the allow-list before any signature work is done.
func (a *Authority) keyFunc(t *jwt.Token) (any, error) {
	if t.Method == nil || t.Method.Alg() != string(a.alg) {
		return nil, ErrAlgorithmNotAllowed
	}
	return a.secret, nil
}

// classify maps golang-jwt errors onto the package taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgorithmNotAllowed):
		return ErrAlgorithmNotAllowed
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg names a method that is not registered at all
		return ErrAlgorithmNotAllowed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformedToken
	}
}

// Kind returns a short label for err suitable for logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlgorithmNotAllowed):
		return "algorithm_not_allowed"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	default:
		return "unknown"
	}
}
