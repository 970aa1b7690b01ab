// Package observability provides OpenTelemetry instrumentation for the
// session core: counters for transitions, guard evaluations, and
// confirmation outcomes, with session-specific semantic attributes.
//
// Only the OTel API is used here. Unless the host installs an SDK and
// exporters, every instrument is a no-op, which keeps the core free of any
// network surface.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/selfsession/selfsession"

// Session-specific semantic convention attributes.
var (
	AttrSessionID        = attribute.Key("selfsession.session.id")
	AttrFromState        = attribute.Key("selfsession.state.from")
	AttrToState          = attribute.Key("selfsession.state.to")
	AttrCapabilityID     = attribute.Key("selfsession.capability.id")
	AttrGuardAllowed     = attribute.Key("selfsession.guard.allowed")
	AttrFailedConditions = attribute.Key("selfsession.guard.failed_conditions")
	AttrConfirmationType = attribute.Key("selfsession.confirmation.type")
	AttrConfirmationOK   = attribute.Key("selfsession.confirmation.valid")
)

// Metrics bundles the core's instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transitions   metric.Int64Counter
	guardEvals    metric.Int64Counter
	guardFailures metric.Int64Counter
	confirmations metric.Int64Counter
}

// NewMetrics registers the session instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	transitions, err := meter.Int64Counter("selfsession.transitions",
		metric.WithDescription("Session state transitions"))
	if err != nil {
		return nil, fmt.Errorf("observability: registering transitions counter: %w", err)
	}
	guardEvals, err := meter.Int64Counter("selfsession.guard.evaluations",
		metric.WithDescription("Execution guard evaluations"))
	if err != nil {
		return nil, fmt.Errorf("observability: registering guard evaluations counter: %w", err)
	}
	guardFailures, err := meter.Int64Counter("selfsession.guard.failures",
		metric.WithDescription("Execution guard failures"))
	if err != nil {
		return nil, fmt.Errorf("observability: registering guard failures counter: %w", err)
	}
	confirmations, err := meter.Int64Counter("selfsession.confirmations",
		metric.WithDescription("Confirmation validation outcomes"))
	if err != nil {
		return nil, fmt.Errorf("observability: registering confirmations counter: %w", err)
	}

	return &Metrics{
		transitions:   transitions,
		guardEvals:    guardEvals,
		guardFailures: guardFailures,
		confirmations: confirmations,
	}, nil
}

// RecordTransition counts one state transition.
func (m *Metrics) RecordTransition(ctx context.Context, sessionID, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		AttrSessionID.String(sessionID),
		AttrFromState.String(from),
		AttrToState.String(to),
	))
}

// RecordGuardEvaluation counts one guard decision; failures increment the
// failure counter as well, tagged with the failed condition names.
func (m *Metrics) RecordGuardEvaluation(ctx context.Context, sessionID, capabilityID string, allowed bool, failed []string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrCapabilityID.String(capabilityID),
		AttrGuardAllowed.Bool(allowed),
	}
	m.guardEvals.Add(ctx, 1, metric.WithAttributes(attrs...))
	if !allowed {
		attrs = append(attrs, AttrFailedConditions.StringSlice(failed))
		m.guardFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordConfirmation counts one confirmation validation outcome.
func (m *Metrics) RecordConfirmation(ctx context.Context, sessionID, confirmationType string, valid bool) {
	if m == nil {
		return
	}
	m.confirmations.Add(ctx, 1, metric.WithAttributes(
		AttrSessionID.String(sessionID),
		AttrConfirmationType.String(confirmationType),
		AttrConfirmationOK.Bool(valid),
	))
}
