package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/javelin-guard/gateway/internal/domain/verdict"
)

// maxResponseBodySize bounds how much of the evaluator's response body is
// read, guarding against a misbehaving evaluator sending unbounded output.
const maxResponseBodySize = 1 << 20 // 1MB

// Config configures a Client.
type Config struct {
	// BaseURL is the evaluator's root, e.g. "https://guardrails.example.com".
	BaseURL string
	// APIKey is sent as the x-javelin-apikey header.
	APIKey string
	// Timeout bounds every evaluator HTTP call.
	Timeout time.Duration
	// CacheTTL and CacheMaxEntries size the verdict cache.
	CacheTTL        time.Duration
	CacheMaxEntries int
	// HTTPClient overrides the default http.Client (for tests).
	HTTPClient *http.Client
	// Metrics, when non-nil, records call outcomes and latency.
	Metrics *Metrics
}

// Metrics holds the Prometheus collectors the client records to. Registered
// by the caller (gateway façade / stdio cmd).
type Metrics struct {
	Calls   *prometheus.CounterVec
	Latency prometheus.Histogram
}

// NewMetrics creates and registers the guardrails call counters/histogram
// with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Calls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "javelin_gateway",
				Name:      "guardrails_calls_total",
				Help:      "Total calls to the guardrails evaluator by outcome",
			},
			[]string{"outcome"}, // outcome=allow/block/error
		),
		Latency: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "javelin_gateway",
				Name:      "guardrails_call_duration_seconds",
				Help:      "Guardrails evaluator call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Client is the outbound HTTP client to the Guardrails evaluator.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *cache
	breaker    *gobreaker.CircuitBreaker
	metrics    *Metrics
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	breakerSettings := gobreaker.Settings{
		Name:        "guardrails-evaluator",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		cache:      newCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		breaker:    gobreaker.NewCircuitBreaker(breakerSettings),
		metrics:    cfg.Metrics,
	}
}

// evaluatorVerdict is the shape of a 2xx evaluator response body.
type evaluatorVerdict struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence"`
}

// ValidateRequest evaluates a request-direction message. method/params are
// the fields the fingerprint and the evaluator envelope depend on; raw is
// the full message body POSTed to the evaluator on a cache miss.
func (c *Client) ValidateRequest(ctx context.Context, method string, params map[string]interface{}, raw json.RawMessage) (verdict.Verdict, error) {
	return c.validate(ctx, method, params, raw)
}

// ValidateResponse evaluates a response-direction message. Same contract as
// ValidateRequest; the two are symmetric at this layer, direction-specific
// reason rewriting happens one level up in the Validation Service.
func (c *Client) ValidateResponse(ctx context.Context, method string, params map[string]interface{}, raw json.RawMessage) (verdict.Verdict, error) {
	return c.validate(ctx, method, params, raw)
}

func (c *Client) validate(ctx context.Context, method string, params map[string]interface{}, raw json.RawMessage) (verdict.Verdict, error) {
	fp := Fingerprint(method, params)
	if v, ok := c.cache.get(fp); ok {
		return v, nil
	}

	start := time.Now()
	v, err := c.callEvaluator(ctx, raw)
	c.recordMetrics(start, v, err)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			slog.Error("guardrails: evaluator returned an authorization error", "status", authErr.StatusCode)
		}
		return verdict.Verdict{}, err
	}

	c.cache.put(fp, v)
	return v, nil
}

func (c *Client) callEvaluator(ctx context.Context, raw json.RawMessage) (verdict.Verdict, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.postValidate(ctx, raw)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return verdict.Verdict{}, &UpstreamError{Err: err}
		}
		return verdict.Verdict{}, err
	}
	return result.(verdict.Verdict), nil
}

func (c *Client) postValidate(ctx context.Context, raw json.RawMessage) (verdict.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(raw))
	if err != nil {
		return verdict.Verdict{}, &UpstreamError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-javelin-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return verdict.Verdict{}, &UpstreamError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return verdict.Verdict{}, &UpstreamError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return verdict.Verdict{}, &AuthError{StatusCode: resp.StatusCode}

	case resp.StatusCode >= 500:
		return verdict.Verdict{}, &UpstreamError{Err: fmt.Errorf("evaluator returned status %d", resp.StatusCode)}

	case resp.StatusCode >= 400:
		return verdict.New(false, fmt.Sprintf("evaluator rejected request: status %d", resp.StatusCode), 0.5), nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ev evaluatorVerdict
		if err := json.Unmarshal(body, &ev); err != nil {
			return verdict.Verdict{}, &UpstreamError{Err: fmt.Errorf("malformed evaluator response: %w", err)}
		}
		confidence := 0.1
		if ev.Allowed {
			confidence = 0.9
		}
		if ev.Confidence != nil {
			confidence = *ev.Confidence
		}
		reason := ev.Reason
		if reason == "" {
			if ev.Allowed {
				reason = "Request approved by Javelin Guardrails"
			} else {
				reason = "Request blocked by Javelin Guardrails"
			}
		}
		return verdict.New(ev.Allowed, reason, confidence), nil

	default:
		return verdict.Verdict{}, &UpstreamError{Err: fmt.Errorf("unexpected evaluator status %d", resp.StatusCode)}
	}
}

func (c *Client) recordMetrics(start time.Time, v verdict.Verdict, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.Latency.Observe(time.Since(start).Seconds())

	outcome := "error"
	if err == nil {
		if v.Allowed {
			outcome = "allow"
		} else {
			outcome = "block"
		}
	}
	c.metrics.Calls.WithLabelValues(outcome).Inc()
}

// HealthCheck performs a best-effort GET against the evaluator's health
// path. A non-2xx response or any error is reported as unhealthy; outside
// test mode, the gateway's /health endpoint reports "degraded" (503) when
// this probe fails.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// CacheStats returns current cache hit/miss/eviction counters.
func (c *Client) CacheStats() CacheStats {
	return c.cache.stats()
}

// ClearCache empties the verdict cache.
func (c *Client) ClearCache() {
	c.cache.clear()
}
