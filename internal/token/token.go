// Package token issues and verifies HS256 signed session tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
)

// Sentinel verification failures. Each is distinguishable with errors.Is.
var (
	ErrMalformed    = errors.New("token is malformed")
	ErrExpired      = errors.New("token has expired")
	ErrBadSignature = errors.New("token signature is invalid")
)

// RoleClaim is the private claim carrying the comma separated role list.
const RoleClaim = "role"

// KeyFileProperty is the entry read from Config.KeyFile.
const KeyFileProperty = "key"

// Config configures a Context.
type Config struct {
	// Secret is the HMAC key. It takes precedence over KeyFile.
	Secret string
	// KeyFile is a KEY=VALUE properties file holding the key under "key".
	KeyFile string
	// TTL adds an exp claim to issued tokens when positive.
	TTL    time.Duration
	Issuer string
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Context signs and verifies tokens with a single immutable key.
// It is safe for concurrent use.
type Context struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// New resolves the signing key and returns a ready Context.
// A missing key is a configuration error.
func New(cfg Config) (*Context, error) {
	key, err := resolveKey(cfg)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Context{key: key, ttl: cfg.TTL, issuer: cfg.Issuer, now: now}, nil
}

func resolveKey(cfg Config) ([]byte, error) {
	if cfg.Secret != "" {
		return []byte(cfg.Secret), nil
	}
	if cfg.KeyFile == "" {
		return nil, apperrors.Configuration("token signing key not configured", nil)
	}
	props, err := godotenv.Read(cfg.KeyFile)
	if err != nil {
		return nil, apperrors.Configuration("read token key file", err)
	}
	key := strings.TrimSpace(props[KeyFileProperty])
	if key == "" {
		return nil, apperrors.Configuration(
			fmt.Sprintf("token key file has no %q property", KeyFileProperty), nil)
	}
	return []byte(key), nil
}

// Issue returns a compact JWS for subjectID carrying role when non-empty.
func (c *Context) Issue(subjectID, role string) (string, error) {
	if subjectID == "" {
		return "", apperrors.ValidationField("sub", "subject is required")
	}
	now := c.now().Truncate(time.Second)
	b := jwt.NewBuilder().Subject(subjectID).IssuedAt(now)
	if c.ttl > 0 {
		b = b.Expiration(now.Add(c.ttl))
	}
	if c.issuer != "" {
		b = b.Issuer(c.issuer)
	}
	if role != "" {
		b = b.Claim(RoleClaim, role)
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.key))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks structure, signature and expiry, in that order.
func (c *Context) Verify(raw string) (domainauth.TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if strings.Count(raw, ".") != 2 {
		return domainauth.TokenClaims{}, ErrMalformed
	}
	msg, err := jws.Parse([]byte(raw))
	if err != nil {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if sigs := msg.Signatures(); len(sigs) != 1 || sigs[0].ProtectedHeaders().Algorithm() != jwa.HS256 {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: unexpected signing algorithm", ErrBadSignature)
	}
	if _, err = jws.Verify([]byte(raw), jws.WithKey(jwa.HS256, c.key)); err != nil {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	tok, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if tok.Subject() == "" {
		return domainauth.TokenClaims{}, fmt.Errorf("%w: missing sub claim", ErrMalformed)
	}
	if exp := tok.Expiration(); !exp.IsZero() && !c.now().Before(exp) {
		return domainauth.TokenClaims{}, ErrExpired
	}

	claims := domainauth.TokenClaims{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get(RoleClaim); ok {
		role, isString := v.(string)
		if !isString {
			return domainauth.TokenClaims{}, fmt.Errorf("%w: role claim is not a string", ErrMalformed)
		}
		claims.Role = role
	}
	return claims, nil
}

// Reason maps a Verify error onto the auth failure reason reported to callers.
func Reason(err error) apperrors.Reason {
	switch {
	case errors.Is(err, ErrExpired):
		return apperrors.ReasonExpiredToken
	case errors.Is(err, ErrBadSignature):
		return apperrors.ReasonBadSignature
	default:
		return apperrors.ReasonMalformedToken
	}
}
