package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

const tracerName = "github.com/neomorfeo/tenantgrid/internal/adapter/otel"

// TracingProvider wraps a domain.EngineProvider with OpenTelemetry tracing
// and metrics. Each lifecycle stage creates a span with tenant attributes,
// records errors, and feeds a duration histogram plus a stage counter.
type TracingProvider struct {
	next   domain.EngineProvider
	tracer trace.Tracer

	stageDuration metric.Float64Histogram
	stageTotal    metric.Int64Counter
}

// Compile-time check: TracingProvider implements domain.EngineProvider.
var _ domain.EngineProvider = (*TracingProvider)(nil)

// NewTracingProvider creates a tracing decorator around the given provider.
func NewTracingProvider(next domain.EngineProvider) (*TracingProvider, error) {
	meter := otel.Meter(tracerName)

	stageDuration, err := meter.Float64Histogram("tenant.engine.stage.duration",
		metric.WithDescription("Duration of tenant engine lifecycle stages"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stageTotal, err := meter.Int64Counter("tenant.engine.stage.total",
		metric.WithDescription("Count of tenant engine lifecycle stage executions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &TracingProvider{
		next:          next,
		tracer:        otel.Tracer(tracerName),
		stageDuration: stageDuration,
		stageTotal:    stageTotal,
	}, nil
}

func (p *TracingProvider) Initialize(ctx context.Context, record domain.TenantRecord) (domain.EngineHandle, error) {
	ctx, span := p.tracer.Start(ctx, "EngineProvider.Initialize",
		trace.WithAttributes(
			attribute.String("tenant.id", record.ID),
			attribute.String("tenant.name", record.Name),
		),
	)
	defer span.End()

	start := time.Now()
	handle, err := p.next.Initialize(ctx, record)
	p.recordStage(ctx, "initialize", record.ID, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return handle, err
}

func (p *TracingProvider) Start(ctx context.Context, handle domain.EngineHandle) error {
	return p.traceStage(ctx, "EngineProvider.Start", "start", handle, p.next.Start)
}

func (p *TracingProvider) Bootstrap(ctx context.Context, handle domain.EngineHandle) error {
	return p.traceStage(ctx, "EngineProvider.Bootstrap", "bootstrap", handle, p.next.Bootstrap)
}

func (p *TracingProvider) Stop(ctx context.Context, handle domain.EngineHandle) error {
	return p.traceStage(ctx, "EngineProvider.Stop", "stop", handle, p.next.Stop)
}

func (p *TracingProvider) ConfigurationAdded(ctx context.Context, handle domain.EngineHandle, relativePath string, data []byte) error {
	return p.traceConfig(ctx, "EngineProvider.ConfigurationAdded", handle, relativePath, func(ctx context.Context) error {
		return p.next.ConfigurationAdded(ctx, handle, relativePath, data)
	})
}

func (p *TracingProvider) ConfigurationUpdated(ctx context.Context, handle domain.EngineHandle, relativePath string, data []byte) error {
	return p.traceConfig(ctx, "EngineProvider.ConfigurationUpdated", handle, relativePath, func(ctx context.Context) error {
		return p.next.ConfigurationUpdated(ctx, handle, relativePath, data)
	})
}

func (p *TracingProvider) ConfigurationDeleted(ctx context.Context, handle domain.EngineHandle, relativePath string) error {
	return p.traceConfig(ctx, "EngineProvider.ConfigurationDeleted", handle, relativePath, func(ctx context.Context) error {
		return p.next.ConfigurationDeleted(ctx, handle, relativePath)
	})
}

func (p *TracingProvider) traceStage(ctx context.Context, spanName, stage string, handle domain.EngineHandle, fn func(context.Context, domain.EngineHandle) error) error {
	tenantID := handle.Tenant().ID
	ctx, span := p.tracer.Start(ctx, spanName,
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx, handle)
	p.recordStage(ctx, stage, tenantID, start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *TracingProvider) traceConfig(ctx context.Context, spanName string, handle domain.EngineHandle, relativePath string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("tenant.id", handle.Tenant().ID),
			attribute.String("config.path", relativePath),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *TracingProvider) recordStage(ctx context.Context, stage, tenantID string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	)
	p.stageDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	p.stageTotal.Add(ctx, 1, attrs)
}
