package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	profileFetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_profile_fetch_attempts_total",
			Help: "Profile fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	authEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_auth_events_total",
			Help: "Auth state events handled by kind.",
		},
		[]string{"kind"},
	)

	profileUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_profile_updates_total",
			Help: "Optimistic profile updates by resolution.",
		},
		[]string{"result"},
	)

	phaseGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_phase",
			Help: "1 for the current session phase, 0 otherwise.",
		},
		[]string{"phase"},
	)
)

func recordPhase(p Phase) {
	for _, ph := range phases {
		v := 0.0
		if ph == p {
			v = 1
		}
		phaseGauge.WithLabelValues(string(ph)).Set(v)
	}
}
