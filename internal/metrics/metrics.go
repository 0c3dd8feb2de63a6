// Package metrics provides Prometheus instrumentation for the ledger core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WalletOperations counts transfer-engine operations by kind and outcome.
	WalletOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coopledger_wallet_operations_total",
		Help: "Total wallet operations processed",
	}, []string{"operation", "outcome"})

	// ShareTrades counts share settlement operations.
	ShareTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coopledger_share_trades_total",
		Help: "Total share settlement operations",
	}, []string{"operation", "outcome"})

	// LoanTransitions counts loan lifecycle transitions by target state.
	LoanTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coopledger_loan_transitions_total",
		Help: "Total loan state transitions",
	}, []string{"to_state"})

	// TxRetries counts serialization-failure retries in the transaction runner.
	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coopledger_tx_retries_total",
		Help: "Serializable transaction retries",
	})

	// WebSocketClients tracks connected balance-stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coopledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coopledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coopledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Raw path keeps cardinality acceptable for this route surface.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
