package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veriflow/veriflow-gateway/pkg/auth"
)

const gatewayYAML = `
log:
  level: debug

auth:
  root_ca_file: /etc/veriflow/ca.pem

providers:
  - name: corp-auth0
    kind: auth0
    issuer_url: https://corp.auth0.example.com
    audience: veriflow-api
  - name: internal-keycloak
    kind: keycloak
    issuer_url: https://sso.internal.example.com/realms/veriflow

postgres:
  host: db.internal
  database: veriflow
  user: gateway

redis:
  host: cache.internal
`

func loadGatewayConfig(t *testing.T, yamlBody string) (*GatewayConfig, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	var cfg GatewayConfig
	err := New().WithFile(path).Load(&cfg)
	return &cfg, err
}

func TestGatewayConfig_LoadFromYAML(t *testing.T) {
	cfg, err := loadGatewayConfig(t, gatewayYAML)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8443" || cfg.Server.GRPCAddr != ":9443" {
		t.Errorf("server = %+v, want default listen addresses", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want file value debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default json", cfg.Log.Format)
	}
	if cfg.Auth.RootCAFile != "/etc/veriflow/ca.pem" {
		t.Errorf("Auth.RootCAFile = %q, want file value", cfg.Auth.RootCAFile)
	}
	if cfg.Auth.CertCacheMaxSize != 10000 {
		t.Errorf("Auth.CertCacheMaxSize = %d, want default 10000", cfg.Auth.CertCacheMaxSize)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("Providers = %d entries, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].Kind != auth.ProviderAuth0 || cfg.Providers[0].Audience != "veriflow-api" {
		t.Errorf("provider 0 = %+v, want auth0 with audience", cfg.Providers[0])
	}
	if cfg.Providers[1].Kind != auth.ProviderKeycloak {
		t.Errorf("provider 1 kind = %q, want keycloak", cfg.Providers[1].Kind)
	}

	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Database != "veriflow" {
		t.Errorf("postgres = %+v, want file values", cfg.Postgres)
	}
	if cfg.Redis.Host != "cache.internal" {
		t.Errorf("Redis.Host = %q, want file value", cfg.Redis.Host)
	}
}

func TestGatewayConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("POSTGRES_HOST", "db-replica.internal")

	cfg, err := loadGatewayConfig(t, gatewayYAML)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want env value warn", cfg.Log.Level)
	}
	if cfg.Postgres.Host != "db-replica.internal" {
		t.Errorf("Postgres.Host = %q, want env value", cfg.Postgres.Host)
	}
}

func TestGatewayConfig_Validate(t *testing.T) {
	t.Run("empty config gets platform defaults", func(t *testing.T) {
		cfg, err := loadGatewayConfig(t, "")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Postgres.Database == "" || cfg.Postgres.User == "" {
			t.Errorf("postgres = %+v, want defaults filled in", cfg.Postgres)
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		if _, err := loadGatewayConfig(t, "log:\n  level: loud\n"); err == nil {
			t.Error("Load() = nil, want log level rejected")
		}
	})

	t.Run("bad log format", func(t *testing.T) {
		if _, err := loadGatewayConfig(t, "log:\n  format: xml\n"); err == nil {
			t.Error("Load() = nil, want log format rejected")
		}
	})

	t.Run("invalid provider", func(t *testing.T) {
		body := "providers:\n  - name: broken\n    kind: carrier-pigeon\n    issuer_url: https://x\n"
		if _, err := loadGatewayConfig(t, body); err == nil {
			t.Error("Load() = nil, want provider kind rejected")
		}
	})

	t.Run("duplicate provider names", func(t *testing.T) {
		body := `
providers:
  - name: corp
    kind: oidc
    issuer_url: https://a.example.com
  - name: corp
    kind: oidc
    issuer_url: https://b.example.com
`
		if _, err := loadGatewayConfig(t, body); err == nil {
			t.Error("Load() = nil, want duplicate provider name rejected")
		}
	})

	t.Run("invalid postgres port", func(t *testing.T) {
		if _, err := loadGatewayConfig(t, "postgres:\n  port: 99999\n"); err == nil {
			t.Error("Load() = nil, want postgres port rejected")
		}
	})
}
