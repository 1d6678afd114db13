package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/cart"
)

// Config holds the storefront server configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"Storefront API listen address"`
	Commerce  CommerceConfig
	Storage   StorageConfig
	Session   SessionConfig
	Cart      CartConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Sweep     SweepConfig
	Graceful  GracefulConfig
}

// CommerceConfig points at the commerce backend.
type CommerceConfig struct {
	BaseURL string        `default:"http://localhost:8080/api" usage:"Commerce API base URL" flag:"commerce-url"`
	Timeout time.Duration `default:"10s" usage:"Commerce request timeout" flag:"commerce-timeout"`
}

// StorageConfig selects where client state is persisted.
type StorageConfig struct {
	Driver      string `default:"memory" usage:"State storage: memory, file or postgres" flag:"storage"`
	Dir         string `default:"./state" usage:"Directory for the file driver" flag:"storage-dir"`
	DatabaseURL string `usage:"PostgreSQL connection URL for the postgres driver (or DATABASE_URL)" flag:"database-url"`
}

// SessionConfig controls session tokens.
type SessionConfig struct {
	Secret string        `usage:"HMAC secret for session tokens, at least 16 bytes" flag:"session-secret"`
	TTL    time.Duration `default:"24h" usage:"Session token lifetime" flag:"session-ttl"`
}

// CartConfig selects the rollback behaviour of failed cart mutations.
type CartConfig struct {
	Rollback       string `default:"restore" usage:"Failed add/quantity rollback: restore or remove" flag:"cart-rollback"`
	RemoveRollback bool   `default:"false" usage:"Bring a line back when its remote removal fails" flag:"cart-remove-rollback"`
}

// options builds the cart options; Rollback is validated by LoadConfig.
func (c CartConfig) options() cart.Options {
	rollback, _ := cart.ParseRollbackPolicy(c.Rollback)
	opts := cart.Options{Rollback: rollback, Removal: cart.RemovalIsAlwaysLocal}
	if c.RemoveRollback {
		opts.Removal = cart.RemovalRollsBack
	}
	return opts
}

// CheckoutConfig controls the remote cart clear after an order is placed.
type CheckoutConfig struct {
	ClearAttempts int           `default:"3" usage:"Remote cart clear attempts after checkout"`
	ClearBackoff  time.Duration `default:"200ms" usage:"Initial backoff between cart clear attempts"`
}

// RateLimitConfig controls the sliding window limit on credential endpoints.
type RateLimitConfig struct {
	Max    int           `default:"10" usage:"Max sign-in requests per window and client"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// SweepConfig controls eviction of idle session state from memory.
type SweepConfig struct {
	Idle     time.Duration `default:"30m" usage:"Drop in-memory session state unused for this long"`
	Interval time.Duration `default:"1m" usage:"How often idle session state is swept"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "file":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres driver: set STOREFRONT_STORAGE_DATABASEURL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if len(c.Session.Secret) < 16 {
		return errors.New("session secret must be at least 16 bytes: set STOREFRONT_SESSION_SECRET")
	}
	if _, err := cart.ParseRollbackPolicy(c.Cart.Rollback); err != nil {
		return errors.Wrap(err, "cart rollback")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.Sweep.Idle <= 0 || c.Sweep.Interval <= 0 {
		return errors.New("sweep idle and interval must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
