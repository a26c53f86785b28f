package config

import "time"

// SessionConfig holds registry defaults applied when a connect request omits them.
type SessionConfig struct {
	// DefaultTimeout applies when SESSION_TIMEOUT is absent. Zero or negative never expires.
	DefaultTimeout time.Duration `env:"SESSION_DEFAULT_TIMEOUT" envDefault:"30m"`

	// DefaultMaxSessions applies when MAX_SESSION is absent. Zero or negative is unlimited.
	DefaultMaxSessions int `env:"SESSION_DEFAULT_MAX" envDefault:"1"`

	// DirectoryEnabled mirrors public session metadata into Redis for admin tooling.
	DirectoryEnabled bool `env:"SESSION_DIRECTORY_ENABLED" envDefault:"false"`

	// DirectoryPrefix is the Redis key prefix of the session directory.
	DirectoryPrefix string `env:"SESSION_DIRECTORY_PREFIX" envDefault:"mmk:sessions:"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.DirectoryPrefix == "" {
		s.DirectoryPrefix = "mmk:sessions:"
	}
}

// SweeperConfig contains expired session sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweeper tick interval.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"1m"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
}
