package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ankaa_deliveries_total",
		Help: "Delivery attempt outcomes by channel and resulting status",
	}, []string{"channel", "status"})

	retriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ankaa_delivery_retries_total",
		Help: "Retries scheduled by channel and error class",
	}, []string{"channel", "class"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ankaa_rate_limited_total",
		Help: "Sends held back by the outbound rate limiter",
	}, []string{"channel"})

	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ankaa_send_duration_seconds",
		Help:    "Transport send latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ankaa_queue_depth",
		Help: "Jobs waiting in each channel's worker pool",
	}, []string{"channel"})
)
