package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"

	"zinga/logger"
	"zinga/models"
)

// Config holds all configuration settings for the application.
type Config struct {
	// Server settings
	ListenAddress string `env:"ZINGA_LISTEN_ADDRESS" envDefault:"0.0.0.0"`
	ListenPort    string `env:"ZINGA_LISTEN_PORT" envDefault:"8080"`

	// Storage settings. DATA_DIR is unprefixed so existing deployments keep working.
	DataDir            string        `env:"DATA_DIR" envDefault:"./data"`
	GuardedCollections []string      `env:"ZINGA_GUARDED_COLLECTIONS" envDefault:"modules" envSeparator:","`
	BackupKeep         int           `env:"ZINGA_BACKUP_KEEP" envDefault:"100"`   // 0 keeps every backup
	BackupMaxAge       time.Duration `env:"ZINGA_BACKUP_MAX_AGE" envDefault:"0s"` // 0 disables age based pruning
	PruneSchedule      string        `env:"ZINGA_PRUNE_SCHEDULE" envDefault:"@hourly"`
	AuditDBPath        string        `env:"ZINGA_AUDIT_DB" envDefault:"audit.db"` // Relative to DataDir; "off" disables

	// Authentication settings
	JwtSecret         string        `env:"ZINGA_JWT_SECRET"`
	JwtSecretFile     string        `env:"ZINGA_JWT_SECRET_FILE"`
	TokenLifetime     time.Duration `env:"ZINGA_TOKEN_LIFETIME" envDefault:"1h"`
	BcryptCost        int           `env:"ZINGA_BCRYPT_COST" envDefault:"12"`
	RequireAdminAuth  bool          `env:"ZINGA_REQUIRE_ADMIN_AUTH" envDefault:"false"`
	SeedAdminEmail    string        `env:"ZINGA_SEED_ADMIN_EMAIL" envDefault:"admin@zingalinga.com"`
	SeedAdminPassword string        `env:"ZINGA_SEED_ADMIN_PASSWORD" envDefault:"admin123"`

	// Write endpoints are rate limited per client IP.
	RateLimit float64 `env:"ZINGA_RATE_LIMIT" envDefault:"5"`
	RateBurst int     `env:"ZINGA_RATE_BURST" envDefault:"20"`

	LogLevel string `env:"ZINGA_LOG_LEVEL" envDefault:"info"`
}

const (
	defaultEnvFile    = ".env"
	defaultJwtKeyFile = "jwt.key" // Inside DataDir
	auditDisabled     = "off"
)

// Option sets a field after the overrides are merged. mergo skips zero values,
// so an explicit false or empty flag has to go through an Option.
type Option func(*Config)

// WithRequireAdminAuth forces RequireAdminAuth to v.
func WithRequireAdminAuth(v bool) Option {
	return func(c *Config) { c.RequireAdminAuth = v }
}

// Load resolves the configuration: defaults < .env file < environment < overrides < opts.
// overrides carries the command-line flags that were explicitly set; nil means none.
func Load(overrides *Config, log *logger.Logger, opts ...Option) (*Config, error) {
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("file", defaultEnvFile).Msg("failed to read env file, ignoring it")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}
	if overrides != nil {
		if err := mergo.Merge(cfg, overrides, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("error merging flag overrides: %w", err)
		}
	}
	for _, opt := range opts {
		opt(cfg)
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for data dir '%s': %w", cfg.DataDir, err)
	}
	cfg.DataDir = absDataDir
	if info, err := os.Stat(cfg.DataDir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("data dir '%s' is a file, not a directory", cfg.DataDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	source, err := resolveJwtSecret(cfg, log)
	if err != nil {
		return nil, err
	}

	logConfiguration(cfg, source, log)
	return cfg, nil
}

// Validate checks the settings that cannot be corrected silently.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	for _, name := range c.GuardedCollections {
		if !models.IsCollection(name) {
			errs = append(errs, fmt.Errorf("guarded collection '%s' is not a document collection", name))
		}
	}
	if c.BackupKeep < 0 {
		errs = append(errs, fmt.Errorf("backup keep must be >= 0, got %d", c.BackupKeep))
	}
	if c.BackupMaxAge < 0 {
		errs = append(errs, fmt.Errorf("backup max age must be >= 0, got %s", c.BackupMaxAge))
	}
	if c.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.PruneSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid prune schedule '%s': %w", c.PruneSchedule, err))
		}
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}
	if c.TokenLifetime <= 0 {
		errs = append(errs, fmt.Errorf("token lifetime must be positive, got %s", c.TokenLifetime))
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate limit and burst must be positive, got %v/%d", c.RateLimit, c.RateBurst))
	}
	if err := validator.New().Var(c.SeedAdminEmail, "required,email"); err != nil {
		errs = append(errs, fmt.Errorf("seed admin email '%s' is invalid", c.SeedAdminEmail))
	}
	return errors.Join(errs...)
}

// AuditEnabled reports whether the audit trail database should be opened.
func (c *Config) AuditEnabled() bool {
	return c.AuditDBPath != "" && c.AuditDBPath != auditDisabled
}

// AuditPath returns the audit database location, resolved against DataDir.
func (c *Config) AuditPath() string {
	if filepath.IsAbs(c.AuditDBPath) {
		return c.AuditDBPath
	}
	return filepath.Join(c.DataDir, c.AuditDBPath)
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.ListenAddress, c.ListenPort)
}

// resolveJwtSecret fills cfg.JwtSecret.
// Priority: secret file > ZINGA_JWT_SECRET > key file in DataDir > generate and save.
func resolveJwtSecret(cfg *Config, log *logger.Logger) (string, error) {
	if cfg.JwtSecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.JwtSecretFile)
		if err == nil {
			if secret := strings.TrimSpace(string(secretBytes)); secret != "" {
				cfg.JwtSecret = secret
				return fmt.Sprintf("File (%s)", cfg.JwtSecretFile), nil
			}
			log.Warn().Str("file", cfg.JwtSecretFile).Msg("JWT secret file is empty, checking other sources")
		} else {
			log.Warn().Err(err).Str("file", cfg.JwtSecretFile).Msg("failed to read JWT secret file, checking other sources")
		}
	}

	if cfg.JwtSecret = strings.TrimSpace(cfg.JwtSecret); cfg.JwtSecret != "" {
		return "Environment Variable (ZINGA_JWT_SECRET)", nil
	}

	keyFile := filepath.Join(cfg.DataDir, defaultJwtKeyFile)
	secretBytes, err := os.ReadFile(keyFile)
	if err == nil {
		if secret := strings.TrimSpace(string(secretBytes)); secret != "" {
			cfg.JwtSecret = secret
			return fmt.Sprintf("Default Key File (%s)", keyFile), nil
		}
		log.Warn().Str("file", keyFile).Msg("default JWT key file is empty, generating a new secret")
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("file", keyFile).Msg("failed to read default JWT key file, generating a new secret")
	}

	secret, err := generateRandomKey(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.JwtSecret = secret

	if err := os.MkdirAll(cfg.DataDir, 0o755); err == nil {
		err = os.WriteFile(keyFile, []byte(secret), 0o600)
		if err == nil {
			return fmt.Sprintf("Generated & Saved (%s)", keyFile), nil
		}
		log.Warn().Err(err).Str("file", keyFile).Msg("failed to save generated JWT secret; it is valid for this process only")
	}
	return "Generated (In Memory)", nil
}

// generateRandomKey returns length random bytes, hex encoded.
func generateRandomKey(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func logConfiguration(cfg *Config, secretSource string, log *logger.Logger) {
	audit := auditDisabled
	if cfg.AuditEnabled() {
		audit = cfg.AuditPath()
	}
	log.Info().
		Str("listen", cfg.ListenAddr()).
		Str("data_dir", cfg.DataDir).
		Strs("guarded_collections", cfg.GuardedCollections).
		Int("backup_keep", cfg.BackupKeep).
		Dur("backup_max_age", cfg.BackupMaxAge).
		Str("prune_schedule", cfg.PruneSchedule).
		Str("audit_db", audit).
		Str("jwt_secret_source", secretSource).
		Dur("token_lifetime", cfg.TokenLifetime).
		Int("bcrypt_cost", cfg.BcryptCost).
		Bool("require_admin_auth", cfg.RequireAdminAuth).
		Float64("rate_limit", cfg.RateLimit).
		Int("rate_burst", cfg.RateBurst).
		Msg("configuration loaded")
}
