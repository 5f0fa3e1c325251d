package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friendsync_reconcile_total",
		Help: "Notifications handled by the reconciler, by outcome",
	}, []string{"outcome"})

	reconcileAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "friendsync_reconcile_attempts",
		Help:    "Transaction attempts per reconciliation",
		Buckets: []float64{1, 2, 3, 5, 8, 13},
	})

	reconcileWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "friendsync_reconcile_writes_total",
		Help: "Writes committed by the reconciler",
	})
)
