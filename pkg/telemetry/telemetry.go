// Package telemetry records escrow lifecycle metrics with go-metrics.
package telemetry

import (
	"time"

	metrics "github.com/armon/go-metrics"
)

// ServiceName prefixes every metric key.
const ServiceName = "escrow"

// Metric keys, relative to ServiceName.
var (
	KeyJobsCreated      = []string{"jobs", "created"}
	KeyJobsFulfilled    = []string{"jobs", "fulfilled"}
	KeyJobsFailed       = []string{"jobs", "failed"}
	KeyJobsExpired      = []string{"jobs", "expired"}
	KeyTransfersSettled = []string{"transfers", "settled"}
	KeyTransfersFailed  = []string{"transfers", "failed"}
	KeyResolveLatency   = []string{"resolve", "latency"}
	KeyDispatchLatency  = []string{"dispatch", "latency"}
)

// Recorder emits lifecycle counters and timers. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	m *metrics.Metrics
}

// New creates a recorder writing to sink.
func New(sink metrics.MetricSink) (*Recorder, error) {
	conf := metrics.DefaultConfig(ServiceName)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = false
	m, err := metrics.New(conf, sink)
	if err != nil {
		return nil, err
	}
	return &Recorder{m: m}, nil
}

// Discard returns a recorder backed by a blackhole sink.
func Discard() *Recorder {
	r, err := New(&metrics.BlackholeSink{})
	if err != nil {
		return nil
	}
	return r
}

// NewInmem creates a recorder with an in-memory sink that keeps retain worth
// of interval-sized buckets. The sink is returned so callers can read or dump it.
func NewInmem(interval, retain time.Duration) (*Recorder, *metrics.InmemSink, error) {
	sink := metrics.NewInmemSink(interval, retain)
	r, err := New(sink)
	if err != nil {
		return nil, nil, err
	}
	return r, sink, nil
}

func (r *Recorder) incr(key []string) {
	if r == nil || r.m == nil {
		return
	}
	r.m.IncrCounter(key, 1)
}

func (r *Recorder) since(key []string, start time.Time) {
	if r == nil || r.m == nil {
		return
	}
	r.m.MeasureSince(key, start)
}

// JobCreated counts a recorded job.
func (r *Recorder) JobCreated() { r.incr(KeyJobsCreated) }

// JobFulfilled counts a fulfilled job.
func (r *Recorder) JobFulfilled() { r.incr(KeyJobsFulfilled) }

// JobFailed counts a failed job.
func (r *Recorder) JobFailed() { r.incr(KeyJobsFailed) }

// JobExpired counts a job failed by the expiry sweep.
func (r *Recorder) JobExpired() { r.incr(KeyJobsExpired) }

// TransferSettled counts a settled transfer.
func (r *Recorder) TransferSettled() { r.incr(KeyTransfersSettled) }

// TransferFailed counts a failed settlement attempt.
func (r *Recorder) TransferFailed() { r.incr(KeyTransfersFailed) }

// ResolveSince records callback resolution latency.
func (r *Recorder) ResolveSince(start time.Time) { r.since(KeyResolveLatency, start) }

// DispatchSince records oracle submission latency.
func (r *Recorder) DispatchSince(start time.Time) { r.since(KeyDispatchLatency, start) }
