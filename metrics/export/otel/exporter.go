package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/profileauth"
	"github.com/MrEthical07/profileauth/metrics/export/internaldefs"
)

// Instrument names. Engine counters share one instrument and are told apart
// by the "event" attribute.
const (
	EventsName       = "profileauth.events"
	LatencyName      = "profileauth.authenticate.latency.buckets"
	AuditDroppedName = "profileauth.audit.dropped"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() profileauth.MetricsSnapshot
	AuditDropped() uint64
}

// OTelExporter observes engine snapshots from a single meter callback.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	events  metric.Int64ObservableCounter
	latency metric.Int64ObservableGauge
	dropped metric.Int64ObservableCounter

	eventAttrs  []metric.ObserveOption
	bucketAttrs [len(internaldefs.Buckets)]metric.ObserveOption
}

func NewOTelExporter(meter metric.Meter, engine *profileauth.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var err error
	if e.events, err = meter.Int64ObservableCounter(EventsName,
		metric.WithDescription("Engine outcomes, labelled by event."),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", EventsName, err)
	}
	if e.latency, err = meter.Int64ObservableGauge(LatencyName,
		metric.WithDescription("Cumulative Authenticate latency bucket counts, labelled by le."),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyName, err)
	}
	if e.dropped, err = meter.Int64ObservableCounter(AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", AuditDroppedName, err)
	}

	// Attribute sets are fixed, so build them once.
	e.eventAttrs = make([]metric.ObserveOption, len(internaldefs.CounterDefs))
	for i, def := range internaldefs.CounterDefs {
		e.eventAttrs[i] = metric.WithAttributes(attribute.String("event", def.Event()))
	}
	for i, le := range internaldefs.Buckets {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}

	if e.registration, err = meter.RegisterCallback(e.observe, e.events, e.latency, e.dropped); err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for i, def := range internaldefs.CounterDefs {
		o.ObserveInt64(e.events, int64(snap.Counters[def.ID]), e.eventAttrs[i])
	}
	// Only the Authenticate latency histogram exists today.
	buckets := internaldefs.Cumulative(snap.Histograms[profileauth.MetricAuthenticateLatency])
	for i, n := range buckets {
		o.ObserveInt64(e.latency, int64(n), e.bucketAttrs[i])
	}
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The meter's instruments remain. Not safe
// to call concurrently.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	reg := e.registration
	e.registration = nil
	return reg.Unregister()
}
