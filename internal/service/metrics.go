package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mintsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vrfmint_mint_requests_total",
		Help: "Mint requests accepted and forwarded to the oracle",
	})

	mintsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrfmint_mints_completed_total",
		Help: "Tokens minted, labeled by attribute class",
	}, []string{"class"})

	mintsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vrfmint_mint_rejections_total",
		Help: "Rejected mint requests and fulfillments, labeled by reason",
	}, []string{"reason"})

	pendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vrfmint_pending_requests",
		Help: "Requests waiting for oracle fulfillment",
	})
)
