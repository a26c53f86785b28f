package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-sessions/config"
	"github.com/target/mmk-sessions/internal/adapters/authroles"
	"github.com/target/mmk-sessions/internal/adapters/devauth"
	"github.com/target/mmk-sessions/internal/adapters/realm"
	redisadapter "github.com/target/mmk-sessions/internal/adapters/redis"
	"github.com/target/mmk-sessions/internal/adapters/tokenauth"
	"github.com/target/mmk-sessions/internal/data"
	"github.com/target/mmk-sessions/internal/ports"
	"github.com/target/mmk-sessions/internal/token"
)

// CredentialConfig contains configuration for the credential backend.
type CredentialConfig struct {
	Auth        config.AuthConfig
	IsDev       bool
	DB          *sql.DB               // required when realm accounts live in Postgres
	RedisClient redis.UniversalClient // required when attempts are tracked in Redis
	Logger      *slog.Logger
}

// CredentialRuntime is the backend selected by AUTH_POLICY plus the
// components that need their own lifecycle.
type CredentialRuntime struct {
	Backend ports.CredentialBackend
	// RealmFile is set when realm accounts are read from a watched YAML file.
	RealmFile *realm.FileStore
}

// BuildCredentialBackend creates the credential backend for the configured policy.
func BuildCredentialBackend(cfg CredentialConfig) (CredentialRuntime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Policy {
	case config.AuthPolicyDummy:
		return buildDummyBackend(cfg, logger)
	case config.AuthPolicyToken:
		return buildTokenBackend(cfg.Auth.Token)
	case config.AuthPolicyRealm, "":
		return buildRealmBackend(cfg, logger)
	default:
		return CredentialRuntime{}, fmt.Errorf("unsupported auth policy %q", cfg.Auth.Policy)
	}
}

func buildDummyBackend(cfg CredentialConfig, logger *slog.Logger) (CredentialRuntime, error) {
	if !cfg.IsDev {
		logger.Warn("dummy credential policy selected outside development mode; every credential is accepted")
	}
	backend, err := devauth.NewBackend(devauth.Config{
		UserID: cfg.Auth.DevAuth.UserID,
		Roles:  cfg.Auth.DevAuth.Roles,
	})
	if err != nil {
		return CredentialRuntime{}, fmt.Errorf("dev auth backend: %w", err)
	}
	return CredentialRuntime{Backend: backend}, nil
}

// NewTokenContext builds the token signer shared by the token policy and the admin CLI.
func NewTokenContext(cfg config.TokenConfig) (*token.Context, error) {
	return token.New(token.Config{
		Secret:  cfg.Secret,
		KeyFile: cfg.KeyFile,
		TTL:     cfg.TTL,
		Issuer:  cfg.Issuer,
	})
}

func buildTokenBackend(cfg config.TokenConfig) (CredentialRuntime, error) {
	tc, err := NewTokenContext(cfg)
	if err != nil {
		return CredentialRuntime{}, fmt.Errorf("token context: %w", err)
	}
	backend, err := tokenauth.NewBackend(tc)
	if err != nil {
		return CredentialRuntime{}, err
	}
	return CredentialRuntime{Backend: backend}, nil
}

func buildRealmBackend(cfg CredentialConfig, logger *slog.Logger) (CredentialRuntime, error) {
	var runtime CredentialRuntime

	store, fileStore, err := buildPrincipalStore(cfg, logger)
	if err != nil {
		return CredentialRuntime{}, err
	}
	runtime.RealmFile = fileStore

	attempts, err := buildAttemptTracker(cfg)
	if err != nil {
		return CredentialRuntime{}, err
	}

	backend, err := realm.NewBackend(realm.Options{
		Store:    store,
		Attempts: attempts,
		Roles: authroles.StaticRoleMapper{
			AdminGroup: cfg.Auth.AdminGroup,
			UserGroup:  cfg.Auth.UserGroup,
		},
		RelaxedReauth: cfg.Auth.Realm.RelaxedReauth,
		Logger:        logger,
	})
	if err != nil {
		return CredentialRuntime{}, err
	}
	runtime.Backend = backend
	return runtime, nil
}

//nolint:ireturn // the store implementation depends on REALM_SOURCE.
func buildPrincipalStore(cfg CredentialConfig, logger *slog.Logger) (ports.PrincipalStore, *realm.FileStore, error) {
	realmCfg := cfg.Auth.Realm
	switch realmCfg.Source {
	case config.RealmSourcePostgres:
		if cfg.DB == nil {
			return nil, nil, errors.New("realm source postgres requires a database connection")
		}
		store := realm.NewBreakerStore(data.NewRealmAccountRepo(cfg.DB), realm.BreakerOptions{
			Name:      "realm-postgres",
			Threshold: realmCfg.Breaker.Threshold,
			Timeout:   realmCfg.Breaker.Timeout,
			Logger:    logger,
		})
		return store, nil, nil
	default:
		fs, err := realm.NewFileStore(realmCfg.File, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("realm accounts loaded", "file", realmCfg.File, "accounts", fs.Len())
		return fs, fs, nil
	}
}

//nolint:ireturn // the tracker implementation depends on REALM_ATTEMPT_STORE.
func buildAttemptTracker(cfg CredentialConfig) (ports.AttemptTracker, error) {
	realmCfg := cfg.Auth.Realm
	if realmCfg.MaxAttempts == 0 {
		return nil, nil
	}
	switch realmCfg.AttemptStore {
	case config.AttemptStoreRedis:
		if cfg.RedisClient == nil {
			return nil, errors.New("realm attempt store redis requires a redis client")
		}
		return redisadapter.NewAttemptTracker(cfg.RedisClient, redisadapter.AttemptTrackerOptions{
			MaxAttempts:     realmCfg.MaxAttempts,
			LockoutDuration: realmCfg.LockoutDuration,
		}), nil
	default:
		return realm.NewMemoryAttempts(
			realm.WithMaxAttempts(realmCfg.MaxAttempts),
			realm.WithLockoutDuration(realmCfg.LockoutDuration),
		), nil
	}
}
