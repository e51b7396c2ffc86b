package ike

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the observation interface: per-transition outcomes, received
// notifications, drops and retransmits, and SA counts by category.
type Stats struct {
	Transitions  *prometheus.CounterVec
	RecvNotifies *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	Retransmits  prometheus.Counter
	Sas          *prometheus.GaugeVec
}

func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ikev2",
			Name:      "transitions_total",
			Help:      "State transition completions by outcome.",
		}, []string{"outcome"}),
		RecvNotifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ikev2",
			Name:      "received_notifies_total",
			Help:      "Notification payloads seen on rejected messages.",
		}, []string{"type"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ikev2",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped before reaching a handler.",
		}, []string{"reason"}),
		Retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ikev2",
			Name:      "response_retransmits_total",
			Help:      "Cached responses retransmitted to duplicate requests.",
		}),
		Sas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ikev2",
			Name:      "sas",
			Help:      "Security associations by DoS-accounting category.",
		}, []string{"category"}),
	}
	if reg != nil {
		reg.MustRegister(s.Transitions, s.RecvNotifies, s.Dropped, s.Retransmits, s.Sas)
	}
	return s
}

func (s *Stats) drop(reason string) {
	s.Dropped.WithLabelValues(reason).Inc()
}

func (s *Stats) outcome(r Result) {
	s.Transitions.WithLabelValues(r.Kind.label()).Inc()
}

func (k ResultKind) label() string {
	switch k {
	case ResultOk:
		return "ok"
	case ResultSuspend:
		return "suspend"
	case ResultIgnore:
		return "ignore"
	case ResultDrop:
		return "drop"
	case ResultFatal:
		return "fatal"
	case ResultFail:
		return "fail"
	case ResultReenter:
		return "reenter"
	}
	return "unknown"
}
