package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTestTracer swaps the global tracer provider for one backed by
// an in-memory exporter. Not compatible with t.Parallel.
func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	return exporter
}

func spanNames(exporter *tracetest.InMemoryExporter) []string {
	spans := exporter.GetSpans()
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		names = append(names, s.Name)
	}
	return names
}

func TestValidateToken_CreatesSpan(t *testing.T) {
	exporter := installTestTracer(t)

	roles := newFakeRoleStore()
	roles.member("octocat", "acme")

	p, err := NewProvider(ProviderConfig{
		Name:       "github",
		Kind:       ProviderGitHub,
		IssuerURL:  "https://gateway.veriflow.dev/github",
		SigningKey: Secret("0123456789abcdef0123456789abcdef"),
	}, nil, roles, nil)
	require.NoError(t, err)

	raw, err := p.(*githubProvider).MintSessionToken("octocat")
	require.NoError(t, err)

	_, err = p.ValidateToken(context.Background(), raw)
	require.NoError(t, err)

	assert.Contains(t, spanNames(exporter), "auth.Provider.ValidateToken")
}

func TestValidateToken_FailureSpanRecordsError(t *testing.T) {
	exporter := installTestTracer(t)

	roles := newFakeRoleStore()
	p, err := NewProvider(ProviderConfig{
		Name:       "github",
		Kind:       ProviderGitHub,
		IssuerURL:  "https://gateway.veriflow.dev/github",
		SigningKey: Secret("0123456789abcdef0123456789abcdef"),
	}, nil, roles, nil)
	require.NoError(t, err)

	_, err = p.ValidateToken(context.Background(), "not-a-token")
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	var recorded bool
	for _, s := range spans {
		if s.Name == "auth.Provider.ValidateToken" && len(s.Events) > 0 {
			recorded = true
		}
	}
	assert.True(t, recorded, "failed validation should record the error on its span")
}
