package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Veriflow/veriflow-gateway/pkg/auth"
	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// redisTracerName is the OpenTelemetry instrumentation scope name for
// the Redis side of this package.
const redisTracerName = "github.com/Veriflow/veriflow-gateway/pkg/store/redis"

// Default connection settings for Kubernetes deployments, where Redis
// runs behind a cluster Service.
const (
	// DefaultRedisHost is the Kubernetes Service DNS name for the
	// gateway's Redis instance.
	DefaultRedisHost = "redis.databases.svc.cluster.local"

	// DefaultRedisPort is the standard Redis port.
	DefaultRedisPort = 6379

	// DefaultRedisDB is the default Redis database index.
	DefaultRedisDB = 0

	// DefaultRedisDialTimeout is the maximum time to wait when
	// establishing a new connection to Redis.
	DefaultRedisDialTimeout = 10 * time.Second

	// DefaultRedisReadTimeout is the maximum time to wait for a read
	// response from Redis.
	DefaultRedisReadTimeout = 5 * time.Second

	// DefaultRedisWriteTimeout is the maximum time to wait for a write
	// to complete on the Redis connection.
	DefaultRedisWriteTimeout = 5 * time.Second

	// revokedKeyPrefix namespaces revocation entries in Redis. The full
	// key is the prefix followed by the certificate thumbprint.
	revokedKeyPrefix = "veriflow:revoked:cert:"
)

// RedisConfig holds the Redis connection configuration for the
// revocation store.
type RedisConfig struct {
	// Host is the Redis server hostname or IP address.
	Host string `json:"host,omitempty" yaml:"host" env:"REDIS_HOST"`

	// Port is the Redis server port.
	Port int `json:"port,omitempty" yaml:"port" env:"REDIS_PORT"`

	// Password is the Redis password. The [auth.Secret] type redacts it
	// in logs and serialized output. Empty when Redis runs without AUTH.
	Password auth.Secret `json:"-" yaml:"password" env:"REDIS_PASSWORD"`

	// DB is the Redis database index. Redis supports databases numbered
	// 0-15 by default.
	DB int `json:"db,omitempty" yaml:"db" env:"REDIS_DB"`

	// DialTimeout is the maximum time to wait when establishing a new
	// connection to Redis.
	DialTimeout time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT"`

	// ReadTimeout is the maximum time to wait for a read response.
	ReadTimeout time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"REDIS_READ_TIMEOUT"`

	// WriteTimeout is the maximum time to wait for a write to complete.
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT"`
}

// DefaultRedisConfig returns a RedisConfig with defaults suitable for a
// Kubernetes deployment.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         DefaultRedisHost,
		Port:         DefaultRedisPort,
		DB:           DefaultRedisDB,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
	}
}

// Validate checks the configuration for invalid values and applies
// defaults for zero-valued fields.
func (c *RedisConfig) Validate() error {
	if c.Host == "" {
		c.Host = DefaultRedisHost
	}
	if c.Port == 0 {
		c.Port = DefaultRedisPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("store: redis port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 || c.DB > 15 {
		return fmt.Errorf("store: redis db must be between 0 and 15, got %d", c.DB)
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultRedisDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultRedisReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultRedisWriteTimeout
	}
	return nil
}

// Addr returns the host:port address for go-redis.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisCmdable defines the narrow slice of Redis commands the revocation
// store uses. It is satisfied by [*redis.Client] and by mock
// implementations, enabling dependency injection via
// [NewRevocationsFromClient] for testing without a real Redis instance.
type RedisCmdable interface {
	// Set sets the string value of a key with an optional expiration.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd

	// Exists returns the number of keys that exist from the specified keys.
	Exists(ctx context.Context, keys ...string) *redis.IntCmd

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	// Ping pings the Redis server.
	Ping(ctx context.Context) *redis.StatusCmd

	// Close closes the client connection.
	Close() error
}

// Compile-time interface compliance check.
var _ RedisCmdable = (*redis.Client)(nil)

// Revocations is the Redis-backed certificate revocation store. An entry
// keyed by certificate thumbprint marks the certificate revoked;
// entries expire with the certificate so the set stays bounded.
// Revocation state is shared across gateway replicas through Redis.
//
// Revocations implements [auth.RevocationStore] and is safe for
// concurrent use by multiple goroutines.
type Revocations struct {
	client RedisCmdable
	tracer trace.Tracer
}

var _ auth.RevocationStore = (*Revocations)(nil)

// NewRevocations creates a Redis-backed revocation store. It validates
// the configuration, creates the go-redis client, and verifies
// connectivity with a ping.
//
// The caller must call [Revocations.Close] when the store is no longer
// needed.
//
// Error codes returned:
//   - [vferr.CodeInternalConfiguration]: invalid configuration
//   - [vferr.CodeUnavailable]: cannot connect to Redis
func NewRevocations(ctx context.Context, cfg RedisConfig) (*Revocations, error) {
	if err := cfg.Validate(); err != nil {
		return nil, vferr.Wrap(err, vferr.CodeInternalConfiguration,
			"store: invalid redis configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, vferr.Wrap(err, vferr.CodeUnavailable,
			"store: failed to connect to redis")
	}

	return &Revocations{
		client: client,
		tracer: otel.Tracer(redisTracerName),
	}, nil
}

// NewRevocationsFromClient creates a Revocations store with a
// pre-existing client. Intended for testing with miniredis or mocks.
func NewRevocationsFromClient(client RedisCmdable) *Revocations {
	return &Revocations{
		client: client,
		tracer: otel.Tracer(redisTracerName),
	}
}

// IsRevoked reports whether the certificate thumbprint is present in the
// revocation set. Infrastructure failures are returned as errors so the
// caller can fail closed rather than treating an outage as "not
// revoked".
func (r *Revocations) IsRevoked(ctx context.Context, thumbprint string) (bool, error) {
	ctx, span := r.startSpan(ctx, "IsRevoked")
	defer span.End()

	n, err := r.client.Exists(ctx, revokedKeyPrefix+thumbprint).Result()
	if err != nil {
		span.RecordError(err)
		return false, wrapRedisError(err, "store: revocation check failed")
	}
	return n > 0, nil
}

// Revoke marks a certificate thumbprint as revoked. The entry expires
// after ttl, which callers should set to the time remaining until the
// certificate's own expiry; a ttl of zero stores the entry without
// expiration.
func (r *Revocations) Revoke(ctx context.Context, thumbprint string, ttl time.Duration) error {
	ctx, span := r.startSpan(ctx, "Revoke")
	defer span.End()

	if err := r.client.Set(ctx, revokedKeyPrefix+thumbprint, "1", ttl).Err(); err != nil {
		span.RecordError(err)
		return wrapRedisError(err, "store: revocation write failed")
	}
	return nil
}

// Reinstate removes a thumbprint from the revocation set. Used by the
// admin surface to undo an accidental revocation.
func (r *Revocations) Reinstate(ctx context.Context, thumbprint string) error {
	ctx, span := r.startSpan(ctx, "Reinstate")
	defer span.End()

	if err := r.client.Del(ctx, revokedKeyPrefix+thumbprint).Err(); err != nil {
		span.RecordError(err)
		return wrapRedisError(err, "store: revocation delete failed")
	}
	return nil
}

// Health verifies that the Redis connection is alive. Designed for
// readiness probes.
func (r *Revocations) Health(ctx context.Context) error {
	ctx, span := r.startSpan(ctx, "Health")
	defer span.End()

	if err := r.client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return vferr.Wrap(err, vferr.CodeUnavailable,
			"store: redis health check failed")
	}
	return nil
}

// Close closes the underlying Redis client. After Close is called, the
// store must not be used.
func (r *Revocations) Close() error {
	return r.client.Close()
}

// startSpan creates a new OpenTelemetry span with standard database
// semantic attributes for Redis operations.
func (r *Revocations) startSpan(ctx context.Context, operationName string) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, "store.redis."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
	)
	return ctx, span
}

// wrapRedisError converts a Redis error to a coded error, distinguishing
// timeouts and cancellations from general failures.
func wrapRedisError(err error, message string) *vferr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return vferr.Wrap(err, vferr.CodeTimeout, message)
	}
	return vferr.Wrap(err, vferr.CodeUnavailable, message)
}
