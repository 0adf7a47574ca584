package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ClinicMetrics are the business counters exported on /metrics.
type ClinicMetrics struct {
	visitsCreated     metric.Int64Counter
	paymentsProcessed metric.Int64Counter
	paymentAmount     metric.Int64Counter
	labCompleted      metric.Int64Counter
	uploadFailures    metric.Int64Counter
	feedPatchFailures metric.Int64Counter
}

// NewClinicMetrics registers the counters on the global meter provider. With
// no provider installed they are no-ops.
func NewClinicMetrics() *ClinicMetrics {
	return NewClinicMetricsWith(otel.Meter(tracerName))
}

func NewClinicMetricsWith(meter metric.Meter) *ClinicMetrics {
	m := &ClinicMetrics{}
	m.visitsCreated, _ = meter.Int64Counter("clinic_visits_created_total",
		metric.WithDescription("Visits opened, by initial status"))
	m.paymentsProcessed, _ = meter.Int64Counter("clinic_payments_total",
		metric.WithDescription("Payment rows appended, by type"))
	m.paymentAmount, _ = meter.Int64Counter("clinic_payment_amount_total",
		metric.WithDescription("Sum of payment amounts, by type"))
	m.labCompleted, _ = meter.Int64Counter("clinic_lab_requests_completed_total",
		metric.WithDescription("Lab requests completed"))
	m.uploadFailures, _ = meter.Int64Counter("clinic_upload_failures_total",
		metric.WithDescription("Files that failed to upload inside a batch"))
	m.feedPatchFailures, _ = meter.Int64Counter("clinic_feed_patch_failures_total",
		metric.WithDescription("Change notifications the projector could not apply"))
	return m
}

func (m *ClinicMetrics) VisitCreated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.visitsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *ClinicMetrics) PaymentProcessed(ctx context.Context, paymentType string, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", paymentType))
	m.paymentsProcessed.Add(ctx, 1, attrs)
	m.paymentAmount.Add(ctx, amount, attrs)
}

func (m *ClinicMetrics) LabCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.labCompleted.Add(ctx, 1)
}

func (m *ClinicMetrics) UploadFailed(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.uploadFailures.Add(ctx, int64(n))
}

func (m *ClinicMetrics) FeedPatchFailed(ctx context.Context, table string) {
	if m == nil {
		return
	}
	m.feedPatchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}
