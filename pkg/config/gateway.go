package config

import (
	"fmt"
	"time"

	"github.com/Veriflow/veriflow-gateway/pkg/auth"
	"github.com/Veriflow/veriflow-gateway/pkg/store"
)

// GatewayConfig is the top-level configuration for a gateway instance.
// It is loaded with [Loader] from defaults, an optional YAML or JSON
// file, and environment variables, in that order of precedence.
//
// Identity providers can only be configured through the file layer:
// the env layer cannot express a list of structs.
type GatewayConfig struct {
	// Server holds the listener configuration.
	Server ServerConfig `json:"server" yaml:"server"`

	// Log holds the structured logging configuration.
	Log LogConfig `json:"log" yaml:"log"`

	// Auth holds the credential validation configuration shared by all
	// credential kinds.
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Providers lists the trusted identity providers. Tokens from any
	// issuer not in this list are rejected.
	Providers []auth.ProviderConfig `json:"providers" yaml:"providers"`

	// Postgres configures the tenant, API-key, and role store.
	Postgres store.PostgresConfig `json:"postgres" yaml:"postgres"`

	// Redis configures the certificate revocation store.
	Redis store.RedisConfig `json:"redis" yaml:"redis"`
}

// ServerConfig holds the HTTP and gRPC listener settings.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `json:"listen_addr" yaml:"listen_addr" env:"LISTEN_ADDR" envDefault:":8443"`

	// GRPCAddr is the gRPC listen address.
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr" env:"GRPC_ADDR" envDefault:":9443"`

	// ReadTimeout bounds how long reading a request may take.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT" envDefault:"10s"`

	// WriteTimeout bounds how long writing a response may take.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"30s"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// LogConfig holds the structured logging settings.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL" envDefault:"info"`

	// Format selects the slog handler: json or text.
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT" envDefault:"json"`
}

// AuthConfig holds the credential validation settings shared across
// credential kinds.
type AuthConfig struct {
	// RootCAFile is the path to the PEM-encoded root CA that client
	// certificate chains must terminate at. When empty, certificate
	// authentication is disabled and only bearer tokens and API keys
	// are accepted.
	RootCAFile string `json:"root_ca_file,omitempty" yaml:"root_ca_file" env:"AUTH_ROOT_CA_FILE"`

	// CertCacheTTL bounds how long a successful certificate validation
	// is reused without re-verifying the chain.
	CertCacheTTL time.Duration `json:"cert_cache_ttl,omitempty" yaml:"cert_cache_ttl" env:"AUTH_CERT_CACHE_TTL" envDefault:"10m"`

	// CertCacheMaxSize bounds the certificate validation cache.
	CertCacheMaxSize int `json:"cert_cache_max_size,omitempty" yaml:"cert_cache_max_size" env:"AUTH_CERT_CACHE_MAX_SIZE" envDefault:"10000"`

	// JWKSCacheTTL bounds how long fetched JWKS documents are reused
	// before the next lookup refetches them.
	JWKSCacheTTL time.Duration `json:"jwks_cache_ttl,omitempty" yaml:"jwks_cache_ttl" env:"AUTH_JWKS_CACHE_TTL" envDefault:"5m"`
}

// Validate implements [Validator]. It checks the fields the struct tags
// cannot express and delegates to the nested configs' own validation.
func (c *GatewayConfig) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log format %q is not one of json, text", c.Log.Format)
	}

	if c.Auth.CertCacheTTL < 0 {
		return fmt.Errorf("config: cert cache TTL must be non-negative, got %v", c.Auth.CertCacheTTL)
	}
	if c.Auth.JWKSCacheTTL < 0 {
		return fmt.Errorf("config: JWKS cache TTL must be non-negative, got %v", c.Auth.JWKSCacheTTL)
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config: provider %d (%s): %w", i, p.Name, err)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: provider name %q is configured twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	// The store's own validation treats database and user as required;
	// the gateway falls back to the platform defaults instead.
	if c.Postgres.URI == "" {
		if c.Postgres.Database == "" {
			c.Postgres.Database = store.DefaultPostgresDatabase
		}
		if c.Postgres.User == "" {
			c.Postgres.User = store.DefaultPostgresUser
		}
	}
	if err := c.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	return nil
}
