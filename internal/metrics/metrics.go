package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Currently open websocket connections",
		},
		[]string{"endpoint"},
	)
	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_active",
			Help: "Rooms currently registered",
		},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchmaking_queue_depth",
			Help: "Players currently waiting in the matchmaking queue",
		},
	)
	MatchesFormed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchmaking_matches_total",
			Help: "Matches successfully provisioned",
		},
	)
	MatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchmaking_failures_total",
			Help: "Room provisioning failures that re-queued players",
		},
	)
	RacesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "races_completed_total",
			Help: "Races that reached game:complete",
		},
	)
	RateLimitDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_dropped_total",
			Help: "Messages dropped by the per-connection rate limiter",
		},
		[]string{"endpoint"},
	)
	ConnectionRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_limiter_rejected_total",
			Help: "Connections rejected by the per-IP cap",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		ActiveRooms,
		QueueDepth,
		MatchesFormed,
		MatchFailures,
		RacesCompleted,
		RateLimitDrops,
		ConnectionRejects,
	)
}
