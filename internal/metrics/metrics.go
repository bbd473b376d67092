package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "budget_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	BudgetSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_sync_total",
		Help: "Department budget lookups by source (cache, live, stale, synthetic)",
	}, []string{"result"})

	SyntheticFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_synthetic_fallback_total",
		Help: "Synthetic department budgets created because Finance was unreachable",
	}, []string{"department"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_transitions_total",
		Help: "Committed budget request status transitions",
	}, []string{"to"})

	SideEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "budget_side_effects_total",
		Help: "Side-effect task outcomes",
	}, []string{"task", "result"})
)

// Middleware records request counts and latency by matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		route := c.Route().Path
		HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
