package browser

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Name:      "browser_sessions_opened_total",
		Help:      "Number of browser sessions opened.",
	})
	metricSessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Name:      "browser_sessions_closed_total",
		Help:      "Number of browser sessions closed.",
	})
	metricNavigations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Name:      "browser_navigations_total",
		Help:      "Navigations performed, by outcome.",
	}, []string{"outcome"})
	metricNavigationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crawlerd",
		Name:      "browser_navigation_duration_seconds",
		Help:      "Wall time spent reaching the navigation settle condition.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func recordSessionOpened() {
	metricSessionsOpened.Inc()
}

func recordSessionClosed() {
	metricSessionsClosed.Inc()
}

func recordNavigation(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	metricNavigations.WithLabelValues(outcome).Inc()
	metricNavigationDuration.Observe(d.Seconds())
}
