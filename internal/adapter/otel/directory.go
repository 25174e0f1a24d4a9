package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantgrid/internal/domain"
)

// TracingDirectory wraps a domain.TenantDirectory with OpenTelemetry tracing.
type TracingDirectory struct {
	next   domain.TenantDirectory
	tracer trace.Tracer
}

// Compile-time check: TracingDirectory implements domain.TenantDirectory.
var _ domain.TenantDirectory = (*TracingDirectory)(nil)

// NewTracingDirectory creates a tracing decorator around the given directory.
func NewTracingDirectory(next domain.TenantDirectory) *TracingDirectory {
	return &TracingDirectory{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (d *TracingDirectory) WaitForAvailable(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "TenantDirectory.WaitForAvailable")
	defer span.End()

	err := d.next.WaitForAvailable(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *TracingDirectory) GetTenantByID(ctx context.Context, id string) (domain.TenantRecord, error) {
	ctx, span := d.tracer.Start(ctx, "TenantDirectory.GetTenantByID",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer span.End()

	record, err := d.next.GetTenantByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return record, err
}
