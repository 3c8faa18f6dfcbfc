package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const devJWTSecret = "dev-secret-change-in-production"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Local    LocalConfig
	Cache    CacheConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `env:"PORT"             env-default:"8080"`
	Env             string        `env:"ENV"              env-default:"development"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds the remote MySQL document store settings.
type DatabaseConfig struct {
	DSN     string `env:"DATABASE_DSN"     env-default:"root:password@tcp(127.0.0.1:3306)/challenge?parseTime=true"`
	Migrate bool   `env:"DATABASE_MIGRATE" env-default:"true"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" env-default:"dev-secret-change-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" env-default:"24h"`
}

// LocalConfig holds the on-device SQLite store location.
type LocalConfig struct {
	Path string `env:"LOCAL_DB_PATH" env-default:"./challenge-local.db"`
}

// CacheConfig holds the caching proxy settings.
type CacheConfig struct {
	// Version must change whenever Assets changes.
	Version        string        `env:"CACHE_VERSION"         env-default:"bmm-challenge-v1"`
	Origin         string        `env:"CACHE_ORIGIN"          env-default:"http://127.0.0.1:5000"`
	Assets         []string      `env:"CACHE_ASSETS"          env-default:"/,/index.html,/admin.html,/css/app.css,/js/app.js,/js/auth.js,/js/checkin.js,/js/challenge.js,/js/progress.js,/content/days.json,/manifest.json,/icons/icon-192.png,/icons/icon-512.png"`
	BypassHosts    []string      `env:"CACHE_BYPASS_HOSTS"    env-default:"firestore.googleapis.com,identitytoolkit.googleapis.com,securetoken.googleapis.com,firebaseio.com"`
	ImmutableHosts []string      `env:"CACHE_IMMUTABLE_HOSTS" env-default:"fonts.googleapis.com,fonts.gstatic.com"`
	Storage        string        `env:"CACHE_STORAGE"         env-default:"sqlite"`
	ForceClaim     bool          `env:"CACHE_FORCE_CLAIM"     env-default:"true"`
	FetchTimeout   time.Duration `env:"CACHE_FETCH_TIMEOUT"   env-default:"15s"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Env == "production" && c.Auth.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production environment"))
	}
	if strings.TrimSpace(c.Cache.Version) == "" {
		errs = append(errs, errors.New("CACHE_VERSION must not be empty"))
	}
	if u, err := url.Parse(c.Cache.Origin); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("CACHE_ORIGIN %q is not an absolute URL", c.Cache.Origin))
	}
	switch c.Cache.Storage {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("CACHE_STORAGE %q: want sqlite or memory", c.Cache.Storage))
	}
	if c.Cache.FetchTimeout <= 0 {
		errs = append(errs, errors.New("CACHE_FETCH_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}
