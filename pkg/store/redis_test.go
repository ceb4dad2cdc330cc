package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

func newTestRevocations(t *testing.T) (*Revocations, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRevocationsFromClient(client), mr
}

func TestRevocations_RevokeAndCheck(t *testing.T) {
	rev, _ := newTestRevocations(t)
	ctx := context.Background()

	const thumbprint = "a3f1c29be02d4455ce1a9b7f0d6e8a417b5c3d2e1f00112233445566778899aa"

	revoked, err := rev.IsRevoked(ctx, thumbprint)
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if revoked {
		t.Error("IsRevoked() = true for a thumbprint never revoked")
	}

	if err := rev.Revoke(ctx, thumbprint, time.Hour); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	revoked, err = rev.IsRevoked(ctx, thumbprint)
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if !revoked {
		t.Error("IsRevoked() = false after Revoke()")
	}
}

func TestRevocations_EntryExpiresWithTTL(t *testing.T) {
	rev, mr := newTestRevocations(t)
	ctx := context.Background()

	if err := rev.Revoke(ctx, "thumb", time.Minute); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	// The entry is scoped to the certificate's remaining lifetime;
	// once that passes the set no longer needs to remember it.
	mr.FastForward(2 * time.Minute)

	revoked, err := rev.IsRevoked(ctx, "thumb")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if revoked {
		t.Error("IsRevoked() = true after the entry's TTL elapsed")
	}
}

func TestRevocations_ZeroTTLPersists(t *testing.T) {
	rev, mr := newTestRevocations(t)
	ctx := context.Background()

	if err := rev.Revoke(ctx, "thumb", 0); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	mr.FastForward(24 * time.Hour)

	revoked, err := rev.IsRevoked(ctx, "thumb")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if !revoked {
		t.Error("IsRevoked() = false for an entry stored without expiration")
	}
}

func TestRevocations_Reinstate(t *testing.T) {
	rev, _ := newTestRevocations(t)
	ctx := context.Background()

	if err := rev.Revoke(ctx, "thumb", time.Hour); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if err := rev.Reinstate(ctx, "thumb"); err != nil {
		t.Fatalf("Reinstate() error: %v", err)
	}

	revoked, err := rev.IsRevoked(ctx, "thumb")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if revoked {
		t.Error("IsRevoked() = true after Reinstate()")
	}
}

func TestRevocations_ThumbprintsAreIndependent(t *testing.T) {
	rev, _ := newTestRevocations(t)
	ctx := context.Background()

	if err := rev.Revoke(ctx, "thumb-a", time.Hour); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	revoked, err := rev.IsRevoked(ctx, "thumb-b")
	if err != nil {
		t.Fatalf("IsRevoked() error: %v", err)
	}
	if revoked {
		t.Error("IsRevoked() = true for a different thumbprint")
	}
}

func TestRevocations_OutageSurfacesAsError(t *testing.T) {
	rev, mr := newTestRevocations(t)
	ctx := context.Background()

	mr.Close()

	_, err := rev.IsRevoked(ctx, "thumb")
	if err == nil {
		t.Fatal("IsRevoked() error = nil, want unavailable error during outage")
	}
	if got := vferr.GetCode(err); got != vferr.CodeUnavailable {
		t.Errorf("error code = %s, want %s", got, vferr.CodeUnavailable)
	}

	if err := rev.Revoke(ctx, "thumb", time.Hour); err == nil {
		t.Fatal("Revoke() error = nil, want unavailable error during outage")
	}
	if err := rev.Health(ctx); err == nil {
		t.Fatal("Health() error = nil, want unavailable error during outage")
	}
}

func TestRedisConfig_Validate(t *testing.T) {
	t.Run("defaults fill zero values", func(t *testing.T) {
		var cfg RedisConfig
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if cfg.Host != DefaultRedisHost || cfg.Port != DefaultRedisPort {
			t.Errorf("addr = %s, want defaults", cfg.Addr())
		}
		if cfg.DialTimeout != DefaultRedisDialTimeout {
			t.Errorf("DialTimeout = %v, want default", cfg.DialTimeout)
		}
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := RedisConfig{Port: -1}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("bad db index", func(t *testing.T) {
		cfg := RedisConfig{DB: 42}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})
}
