package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentInitiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zidallie",
		Subsystem: "payments",
		Name:      "initiations_total",
		Help:      "Collection requests by payment model and result.",
	}, []string{"model", "result"})

	settlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zidallie",
		Subsystem: "payments",
		Name:      "settlement_outcomes_total",
		Help:      "Collection callbacks by processing outcome.",
	}, []string{"outcome"})

	disbursementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zidallie",
		Subsystem: "payments",
		Name:      "disbursement_events_total",
		Help:      "Payout dispatches and reconciliations by channel and status.",
	}, []string{"channel", "status"})
)
