package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	bidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_total",
			Help: "Bids processed, by result.",
		},
		[]string{"result"},
	)

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Open websocket connections.",
	})

	auctionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_transitions_total",
			Help: "Auction status transitions, by target status.",
		},
		[]string{"to"},
	)

	escrowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Payment status transitions, by target status.",
		},
		[]string{"to"},
	)

	eventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_failures_total",
			Help: "Domain events that could not be published.",
		},
		[]string{"topic"},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			bidsTotal, wsConnections, auctionTransitions, escrowTransitions, eventPublishFailures)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records RPS, latency and in-flight requests per route template.
func Middleware(c *gin.Context) {
	httpInFlight.Inc()
	start := time.Now()

	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	status := strconv.Itoa(c.Writer.Status())
	httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	httpInFlight.Dec()
}

func BidProcessed(result string) { bidsTotal.WithLabelValues(result).Inc() }

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func AuctionTransition(to string) { auctionTransitions.WithLabelValues(to).Inc() }

func EscrowTransition(to string) { escrowTransitions.WithLabelValues(to).Inc() }

func EventPublishFailed(topic string) { eventPublishFailures.WithLabelValues(topic).Inc() }
