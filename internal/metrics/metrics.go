package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_messages_posted_total",
			Help: "Total messages persisted",
		},
	)

	EchoesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_echoes_relayed_total",
			Help: "Total echo frames relayed to room members",
		},
	)

	// Live channel metrics
	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_socket_connections",
			Help: "Open live channel connections",
		},
	)

	SocketFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_socket_frames_dropped_total",
			Help: "Frames dropped for slow consumers",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomchat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_store_latency_seconds",
			Help:    "Message store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"backend"},
	)

	// Client metrics
	TimelineMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_client_timeline_mutations_total",
			Help: "Live events applied to the timeline, by outcome",
		},
		[]string{"mutation"},
	)

	NormalizationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_client_normalization_failures_total",
			Help: "Inbound events dropped as malformed or unrecognized",
		},
	)

	StaleCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_client_stale_completions_total",
			Help: "Completions discarded because the room changed",
		},
		[]string{"op"},
	)

	MessagesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_client_messages_submitted_total",
			Help: "Messages submitted, by whether an optimistic echo was sent",
		},
		[]string{"optimistic"},
	)
)
