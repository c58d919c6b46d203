// Package tracing exports OpenTelemetry spans for the task lifecycle. Until
// Setup runs the global no-op provider is in place and spans cost nothing.
package tracing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/joshuapare/capkit"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
	sink     io.Closer
)

// Setup installs a provider writing spans as JSON to path, or to stdout when
// path is empty. Only the first Setup takes effect until Shutdown.
func Setup(service, version, path string) error {
	mu.Lock()
	defer mu.Unlock()
	if provider != nil {
		return nil
	}

	var (
		w      io.Writer = os.Stdout
		closer io.Closer
	)
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		w, closer = f, f
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", version),
	)
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	sink = closer
	otel.SetTracerProvider(provider)
	return nil
}

// Shutdown flushes the provider installed by Setup and closes its output.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	if sink != nil {
		err = errors.Join(err, sink.Close())
	}
	provider, sink = nil, nil
	return err
}

// Span is an in-flight span. A nil *Span ignores every call.
type Span struct {
	s trace.Span
}

// Start opens an internal span named name under ctx.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, s := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{s: s}
}

// Set adds attributes to the span.
func (sp *Span) Set(attrs ...attribute.KeyValue) {
	if sp == nil {
		return
	}
	sp.s.SetAttributes(attrs...)
}

// End closes the span, marking it failed when err is non-nil.
func (sp *Span) End(err error) {
	if sp == nil {
		return
	}
	if err != nil {
		sp.s.RecordError(err)
		sp.s.SetStatus(codes.Error, err.Error())
	} else {
		sp.s.SetStatus(codes.Ok, "")
	}
	sp.s.End()
}
