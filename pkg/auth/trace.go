package auth

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the OpenTelemetry instrumentation scope name for auth
// spans.
const tracerName = "github.com/Veriflow/veriflow-gateway/pkg/auth"

// finishSpan records err on the span and marks the span status as
// Error. No-op when err is nil.
func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
