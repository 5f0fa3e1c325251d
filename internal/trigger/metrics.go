package trigger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "friendsync_deliveries_total",
	Help: "Outbox deliveries by result (ok, retry, dead)",
}, []string{"result"})
