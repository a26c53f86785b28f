package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthPolicy selects the credential backend used for connect requests.
type AuthPolicy string

const (
	// AuthPolicyDummy accepts every credential (local development only).
	AuthPolicyDummy AuthPolicy = "dummy"
	// AuthPolicyRealm checks username/password against a realm principal store.
	AuthPolicyRealm AuthPolicy = "realm"
	// AuthPolicyToken verifies HMAC signed tokens.
	AuthPolicyToken AuthPolicy = "token"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthPolicy.
func (a *AuthPolicy) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "dummy", "realm", "token":
		*a = AuthPolicy(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthPolicy: %q (valid options: dummy, realm, token)", v)
	}
}

// RealmSource selects where realm accounts are loaded from.
type RealmSource string

const (
	// RealmSourceFile reads accounts from a YAML file.
	RealmSourceFile RealmSource = "file"
	// RealmSourcePostgres reads accounts from the realm_accounts tables.
	RealmSourcePostgres RealmSource = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for RealmSource.
func (r *RealmSource) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "file", "postgres":
		*r = RealmSource(v)
		return nil
	default:
		return fmt.Errorf("invalid RealmSource: %q (valid options: file, postgres)", v)
	}
}

// AttemptStore selects where failed login counters live.
type AttemptStore string

const (
	// AttemptStoreMemory keeps counters in process.
	AttemptStoreMemory AttemptStore = "memory"
	// AttemptStoreRedis shares counters across instances through Redis.
	AttemptStoreRedis AttemptStore = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for AttemptStore.
func (s *AttemptStore) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*s = AttemptStore(v)
		return nil
	default:
		return fmt.Errorf("invalid AttemptStore: %q (valid options: memory, redis)", v)
	}
}

// DevAuthConfig controls the placeholder identity of the dummy policy.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"anonymous"`
	Roles  []string `env:"ROLES"   envDefault:"admin"     envSeparator:";"`
}

// BreakerConfig tunes the circuit breaker around remote principal stores.
type BreakerConfig struct {
	// Threshold is the minimum number of requests before the failure ratio is evaluated.
	Threshold int `env:"THRESHOLD" envDefault:"5"`
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to breaker configuration values.
func (b *BreakerConfig) Sanitize() {
	if b.Threshold < 1 {
		b.Threshold = 1
	}
	if b.Timeout < time.Second {
		b.Timeout = time.Second
	}
}

// RealmConfig controls the realm credential backend.
type RealmConfig struct {
	Source RealmSource `env:"SOURCE" envDefault:"file"`
	// File is the YAML account file used when Source=file.
	File string `env:"FILE" envDefault:"realm.yaml"`
	// Watch reloads File when it changes on disk.
	Watch bool `env:"WATCH" envDefault:"true"`

	// RelaxedReauth lets an already authenticated backend session pass
	// credential re-checks without consulting the store again.
	RelaxedReauth bool `env:"RELAXED_REAUTH" envDefault:"true"`

	MaxAttempts     int           `env:"MAX_ATTEMPTS"     envDefault:"3"`
	LockoutDuration time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	AttemptStore    AttemptStore  `env:"ATTEMPT_STORE"    envDefault:"memory"`

	Breaker BreakerConfig `envPrefix:"BREAKER_"`
}

// Sanitize applies guardrails to realm configuration values.
func (r *RealmConfig) Sanitize() {
	r.File = strings.TrimSpace(r.File)
	if r.MaxAttempts < 0 {
		r.MaxAttempts = 0
	}
	if r.LockoutDuration < time.Second {
		r.LockoutDuration = time.Second
	}
	r.Breaker.Sanitize()
}

// TokenConfig controls signed token issuance and verification.
type TokenConfig struct {
	// Secret is the HMAC key. When empty, KeyFile is consulted.
	Secret string `env:"SECRET"`
	// KeyFile is a KEY=VALUE properties file whose "key" entry holds the HMAC key.
	KeyFile string `env:"KEY_FILE"`
	// TTL bounds issued tokens; zero issues tokens without an exp claim.
	TTL    time.Duration `env:"TTL"    envDefault:"1h"`
	Issuer string        `env:"ISSUER" envDefault:"mmk-sessions"`
}

// Sanitize applies guardrails to token configuration values.
func (t *TokenConfig) Sanitize() {
	t.KeyFile = strings.TrimSpace(t.KeyFile)
	if t.TTL < 0 {
		t.TTL = 0
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Policy determines which credential backend verifies connect requests.
	Policy AuthPolicy `env:"AUTH_POLICY" envDefault:"realm"`

	// AllowBypassCredential permits BYPASS_CREDENTIAL on connect requests.
	// Only enable for deployments where every caller is a trusted internal service.
	AllowBypassCredential bool `env:"AUTH_ALLOW_BYPASS_CREDENTIAL" envDefault:"false"`

	// AllowForcedSessionID lets callers choose the secret id of a new session
	// through SECRET_SESSION_ID. Same trust requirement as bypass.
	AllowForcedSessionID bool `env:"AUTH_ALLOW_FORCED_SESSION_ID" envDefault:"false"`

	// DevAuth configuration (used when Policy=dummy).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Realm configuration (used when Policy=realm).
	Realm RealmConfig `envPrefix:"REALM_"`

	// Token configuration (used when Policy=token and by the admin CLI).
	Token TokenConfig `envPrefix:"TOKEN_"`

	// AdminGroup is the realm group whose members receive the admin role.
	AdminGroup string `env:"ADMIN_GROUP" envDefault:"admins"`

	// UserGroup is the realm group whose members receive the user role.
	UserGroup string `env:"USER_GROUP" envDefault:"users"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.Realm.Sanitize()
	a.Token.Sanitize()
}
