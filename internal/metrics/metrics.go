package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grocerylist"

var (
	statementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "statements_total",
			Help:      "Total number of statements executed by kind and result",
		},
		[]string{"kind", "result"},
	)

	statementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "statement_duration_seconds",
			Help:      "Duration of statements in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Number of connected change feed clients",
		},
	)

	backupRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Total number of backup runs by result",
		},
		[]string{"result"},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveStatement records one storage statement. kind is one of
// execute, query, query_one, run.
func ObserveStatement(kind string, start time.Time, err error) {
	statementsTotal.WithLabelValues(kind, result(err)).Inc()
	statementDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveRequest counts a served HTTP request.
func ObserveRequest(method string, status int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// SetWebsocketClients reports the current number of change feed clients.
func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}

// ObserveBackup counts a backup run.
func ObserveBackup(err error) {
	backupRunsTotal.WithLabelValues(result(err)).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
