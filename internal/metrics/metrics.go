// Package metrics provides Prometheus metrics for the explorer.
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
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Tree operation metrics
	treeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_tree_operations_total",
			Help: "Total tree operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	treeSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_tree_size",
			Help: "Number of files and folders in a loaded workspace",
		},
		[]string{"workspace"},
	)

	movedNodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_moved_nodes_total",
			Help: "Total nodes rewritten by move and rename operations",
		},
	)

	// Workspace metrics
	workspaceSwitchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "explorer_workspace_switch_duration_seconds",
			Help:    "Time to flush the outgoing workspace and load the next",
			Buckets: prometheus.DefBuckets,
		},
	)

	workspacesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_workspaces_loaded",
			Help: "Number of workspaces held in memory",
		},
	)

	// Store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_store_operation_duration_seconds",
			Help:    "Persistence operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_store_operations_total",
			Help: "Total persistence operations",
		},
		[]string{"backend", "operation", "status"},
	)

	saveRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_store_save_retries_total",
			Help: "Total snapshot save attempts that were retried",
		},
	)

	dirtyWorkspaces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_dirty_workspaces",
			Help: "Workspaces whose last save failed and await a retry",
		},
	)

	// Event metrics
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_events_total",
			Help: "Total events emitted on the bus",
		},
		[]string{"type"},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_sse_events_dropped_total",
			Help: "Events dropped for slow SSE consumers",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTreeOperation records a tree mutation or query.
func RecordTreeOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	treeOperationsTotal.WithLabelValues(operation, result).Inc()
}

// SetTreeSize sets the node count of a workspace.
func SetTreeSize(workspace string, size int) {
	treeSize.WithLabelValues(workspace).Set(float64(size))
}

// ForgetWorkspace drops per-workspace series.
func ForgetWorkspace(workspace string) {
	treeSize.DeleteLabelValues(workspace)
}

// RecordMovedNodes adds to the count of rewritten nodes.
func RecordMovedNodes(n int) {
	movedNodesTotal.Add(float64(n))
}

// RecordWorkspaceSwitch records a workspace switch duration.
func RecordWorkspaceSwitch(duration time.Duration) {
	workspaceSwitchDuration.Observe(duration.Seconds())
}

// SetWorkspacesLoaded sets the number of in-memory workspaces.
func SetWorkspacesLoaded(n int) {
	workspacesLoaded.Set(float64(n))
}

// RecordStoreOperation records a persistence call.
func RecordStoreOperation(backend, operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordSaveRetry records a retried save attempt.
func RecordSaveRetry() {
	saveRetriesTotal.Inc()
}

// SetDirtyWorkspaces sets the number of workspaces awaiting a save.
func SetDirtyWorkspaces(n int) {
	dirtyWorkspaces.Set(float64(n))
}

// RecordEvent records an emitted bus event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEDrop records an event dropped for a slow consumer.
func RecordSSEDrop() {
	sseDroppedTotal.Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics. The
// route pattern is used as the path label to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
