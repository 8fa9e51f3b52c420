package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tipjar"

// Metrics owns a private registry so independent instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	TipsSent            prometheus.Counter
	TipsRejected        *prometheus.CounterVec
	LamportsTransferred prometheus.Counter
	LedgerCredits       prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with every tipjar collector registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TipsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tips_sent_total",
			Help:      "Total number of tips committed.",
		}),
		TipsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tips_rejected_total",
			Help:      "Total number of tips rejected, by failure reason.",
		}, []string{"reason"}),
		LamportsTransferred: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lamports_transferred_total",
			Help:      "Total lamports moved from senders to recipients by committed tips.",
		}),
		LedgerCredits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_credits_total",
			Help:      "Total number of operator funding credits applied.",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distributions.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),
	}
}

// TipSent records a committed tip.
func (m *Metrics) TipSent(amount uint64) {
	m.TipsSent.Inc()
	m.LamportsTransferred.Add(float64(amount))
}

// TipRejected records a failed tip under its failure reason.
func (m *Metrics) TipRejected(reason string) {
	m.TipsRejected.WithLabelValues(reason).Inc()
}

// LedgerCredited records an operator funding credit.
func (m *Metrics) LedgerCredited() {
	m.LedgerCredits.Inc()
}

// Middleware counts and times every request matched by a route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()

		c.Next()

		if path == "" {
			return
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
