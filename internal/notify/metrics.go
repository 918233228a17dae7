package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsSentTotal *prometheus.CounterVec
	alertsOnce      sync.Once
)

// InitMetrics registers the alert delivery counters. Safe to call multiple times.
func InitMetrics() {
	alertsOnce.Do(func() {
		alertsSentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitescan_alerts_sent_total",
				Help: "Alert messages delivered, labeled by channel.",
			},
			[]string{"channel"},
		)
	})
}

func observeAlertsSent(channel string, n int) {
	if alertsSentTotal != nil {
		alertsSentTotal.WithLabelValues(channel).Add(float64(n))
	}
}
