package goMFA

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	attrMember  = attribute.Key("mfa.member")
	attrMethod  = attribute.Key("mfa.method")
	attrSuccess = attribute.Key("mfa.successful")
)

func (e *Engine) startSpan(ctx context.Context, name, memberID, segment string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attrMember.String(memberID)}
	if segment != "" {
		attrs = append(attrs, attrMethod.String(segment))
	}
	return e.tracer.Start(ctx, "mfa."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// endSpan records err on span and ends it. Wrong answers are not errors.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
