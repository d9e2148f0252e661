// Package output implements the external collaborators spec.md names as
// out of core scope: the colored terminal printer, the CSV signal log, and
// the optional status/signal dashboard. All three implement Sink so the
// orchestrator can broadcast to however many are configured without knowing
// which ones are active.
package output

import "orderflow-engine/pkg/types"

// Sink receives signal and status records emitted by the core engine. Signal
// is called once per emitted trading signal; Status is called on the
// periodic status cadence; Final is called once on graceful shutdown.
type Sink interface {
	Signal(types.Signal)
	Status(types.StatusUpdate)
	Final(types.FinalStats)
}

// MultiSink fans a single event out to every configured sink. A sink that
// panics or blocks is the caller's problem; output sinks here are expected
// to be non-blocking and resilient.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a fan-out sink over the given sinks, skipping any nil
// entries (the convention used when a sink is configuration-gated off).
func NewMultiSink(sinks ...Sink) *MultiSink {
	var out []Sink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

func (m *MultiSink) Signal(s types.Signal) {
	for _, sink := range m.sinks {
		sink.Signal(s)
	}
}

func (m *MultiSink) Status(s types.StatusUpdate) {
	for _, sink := range m.sinks {
		sink.Status(s)
	}
}

func (m *MultiSink) Final(s types.FinalStats) {
	for _, sink := range m.sinks {
		sink.Final(s)
	}
}
