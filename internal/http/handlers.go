package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"fintrack/internal/middleware/security"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady checks that the store answers within a short deadline
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	switch {
	case s.store == nil:
		checks["store"] = "not_configured"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	default:
		if err := s.store.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	if s.sessions != nil {
		checks["session_cache"] = map[string]any{
			"entries": s.sessions.Size(),
			"status":  "ok",
		}
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.GetMetrics().ClientCount,
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	m := s.appMetrics

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Total number of 5xx responses", traceMetrics.ServerErrors)
	gauge("http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP transaction_mutations_total Successful transaction mutations\n")
	fmt.Fprintf(w, "# TYPE transaction_mutations_total counter\n")
	fmt.Fprintf(w, "transaction_mutations_total{op=\"create\"} %d\n", atomic.LoadInt64(&m.transactionsCreated))
	fmt.Fprintf(w, "transaction_mutations_total{op=\"update\"} %d\n", atomic.LoadInt64(&m.transactionsUpdated))
	fmt.Fprintf(w, "transaction_mutations_total{op=\"delete\"} %d\n\n", atomic.LoadInt64(&m.transactionsDeleted))

	counter("transaction_list_requests_total", "Successful transaction list requests", atomic.LoadInt64(&m.listRequests))
	counter("transaction_analytics_requests_total", "Successful analytics requests", atomic.LoadInt64(&m.analyticsRequests))
	counter("users_registered_total", "Accounts created", atomic.LoadInt64(&m.usersRegistered))

	if s.sessions != nil {
		st := s.sessions.Stats()
		counter("session_cache_hits_total", "Session cache hits", int64(st.Hits))
		counter("session_cache_misses_total", "Session cache misses", int64(st.Misses))
		counter("session_cache_evictions_total", "Session cache evictions", int64(st.Evictions))
		gauge("session_cache_entries", "Current session cache entries", int64(st.Size))
	}

	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	if len(securityMetrics.ByReason) > 0 {
		reasons := make([]string, 0, len(securityMetrics.ByReason))
		for reason := range securityMetrics.ByReason {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		fmt.Fprintf(w, "# HELP suspicious_requests_by_reason_total Suspicious requests by detection reason\n")
		fmt.Fprintf(w, "# TYPE suspicious_requests_by_reason_total counter\n")
		for _, reason := range reasons {
			fmt.Fprintf(w, "suspicious_requests_by_reason_total{reason=%q} %d\n", reason, securityMetrics.ByReason[security.Reason(reason)])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(m.uptime).Seconds())
}
