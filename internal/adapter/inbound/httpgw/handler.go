// Package httpgw implements the Gateway Façade: the HTTP surface exposing
// health, license status, one-shot validation, and the streamable-HTTP MCP
// transport, which validates and forwards each session's traffic through a
// downstream child process using the same Correlation Table and Validation
// Service the stdio Proxy Loop runs on.
package httpgw

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/javelin-guard/gateway/internal/adapter/outbound/license"
	"github.com/javelin-guard/gateway/internal/config"
	"github.com/javelin-guard/gateway/internal/domain/jsonrpc"
)

// maxValidateBodySize bounds how much of a /validate or /mcp request body
// is read, guarding against an unbounded client upload.
const maxValidateBodySize = 4 << 20 // 4MB

// Version is the gateway's reported version, surfaced on /health.
const Version = "0.1.0"

// Metrics holds the façade's own Prometheus collectors, separate from the
// guardrails client's metrics, registered the way
// internal/adapter/inbound/http/metrics.go registers its own collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the façade's request counters/histogram.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "javelin_gateway",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests handled by the gateway façade",
			},
			[]string{"route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "javelin_gateway",
				Name:      "http_request_duration_seconds",
				Help:      "Gateway façade request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Validator is the subset of the Validation Service the façade depends on.
type Validator interface {
	mcpValidator
	HealthCheck(ctx context.Context) bool
}

// Handler is the gateway façade's HTTP router.
type Handler struct {
	mux       *http.ServeMux
	validator Validator
	license   license.Checker
	sessions  *sessionPool
	metrics   *Metrics
	logger    *slog.Logger
}

// New builds the Gateway Façade handler. target configures the downstream
// MCP server the /mcp route spawns sessions against.
func New(validator Validator, licenseChecker license.Checker, target config.TargetConfig, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		mux:       http.NewServeMux(),
		validator: validator,
		license:   licenseChecker,
		sessions:  newSessionPool(target, validator, logger),
		metrics:   metrics,
		logger:    logger,
	}
	h.routes()
	return h
}

// Close releases the façade's outstanding /mcp session resources.
func (h *Handler) Close() {
	h.sessions.Close()
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /license", h.handleLicense)
	h.mux.HandleFunc("POST /validate", h.handleValidate)
	h.mux.HandleFunc("POST /mcp", h.handleMCP)
	h.mux.Handle("GET /metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler. CORS is permissive by design (§4.F):
// auth, if any, is an external concern layered in front of this gateway.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	start := time.Now()
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rw, r)

	if h.metrics != nil {
		route := r.URL.Path
		h.metrics.RequestsTotal.WithLabelValues(route, statusClass(rw.status)).Inc()
		h.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "error"
	case code >= 400:
		return "client_error"
	default:
		return "ok"
	}
}

// healthResponse is the /health JSON body.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.validator.HealthCheck(r.Context()) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Service: "javelin-gateway", Version: Version})
}

func (h *Handler) handleLicense(w http.ResponseWriter, r *http.Request) {
	status, err := h.license.Check(r.Context())
	if err != nil {
		h.logger.Error("license check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "license check failed"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// validateResponse is the JSON body returned by POST /validate.
type validateResponse struct {
	Valid      bool      `json:"valid"`
	Reason     string    `json:"reason,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxValidateBodySize))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read request body"})
		return
	}

	msg, parseErr := jsonrpc.Parse(raw, jsonrpc.ClientToServer, time.Now())
	if parseErr != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "request body is not a valid JSON-RPC message"})
		return
	}

	v := h.validator.ValidateRequest(r.Context(), msg)
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:      v.Allowed,
		Reason:     v.Reason,
		Confidence: v.Confidence,
		RequestID:  v.RequestID,
		Timestamp:  v.Timestamp,
	})
}

func (h *Handler) handleMCP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxValidateBodySize))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read request body"})
		return
	}

	sessionID, sess, err := h.sessions.getOrCreate(r.Context(), r.Header.Get("Mcp-Session-Id"))
	if err != nil {
		h.logger.Error("failed to acquire mcp session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to start downstream session"})
		return
	}

	respRaw, err := sess.handle(r.Context(), h.validator, raw)
	if err != nil {
		h.logger.Error("mcp session request failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "downstream session failed"})
		return
	}

	w.Header().Set("Mcp-Session-Id", sessionID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respRaw)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
