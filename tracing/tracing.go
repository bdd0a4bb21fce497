// Package tracing is a thin wrapper around OpenTelemetry so the rest of the
// code base starts and ends spans without importing the SDK.
//
// Until Init is called the global provider is the OpenTelemetry no-op, so
// spans cost nothing when tracing is disabled.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/richinex/spindle"

// Shutdown flushes and stops the installed provider.
type Shutdown func(context.Context) error

// Init installs a stdout exporter writing to outputFile, or os.Stdout when
// outputFile is empty.
func Init(serviceName, serviceVersion, outputFile string) (Shutdown, error) {
	var w io.Writer = os.Stdout
	var closer io.Closer
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	shutdown, err := InitWithExporter(serviceName, serviceVersion, exporter)
	if err != nil {
		return nil, err
	}
	if closer == nil {
		return shutdown, nil
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// InitWithExporter installs exporter as the global trace provider.
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (Shutdown, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Span wraps an OpenTelemetry span.
type Span struct {
	span trace.Span
}

// StartSpan starts an internal span as a child of any span in ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &Span{span: span}
}

// WithAttributes attaches string attributes to the span.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	s.span.SetAttributes(kvs...)
	return s
}

// WithInt attaches one integer attribute.
func (s *Span) WithInt(key string, v int) *Span {
	if s == nil {
		return s
	}
	s.span.SetAttributes(attribute.Int(key, v))
	return s
}

// AddEvent records a named event on the span.
func (s *Span) AddEvent(name string) {
	if s == nil {
		return
	}
	s.span.AddEvent(name)
}

// EndSpan records err (or OK) and ends the span.
func EndSpan(s *Span, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
