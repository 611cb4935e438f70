package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"drinkmailer/internal/adapters/iplookup"
	auditDomain "drinkmailer/internal/domain/audit"
)

// handleGetIP handles GET /api/get-ip
// POST: Returns the first X-Forwarded-For value, or "unknown"
func (s *server) handleGetIP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ip": iplookup.ForwardedFor(r.Header)})
}

// handleHealthz handles GET /healthz
func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.Ping != nil {
		if err := s.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "database unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "egress_ip": s.EgressIP()})
}

// handleAPIAudit handles GET /api/audit
// PRE: category, action, severity (optional) are known enum values
// POST: Returns matching events, newest first
func (s *server) handleAPIAudit(w http.ResponseWriter, r *http.Request) {
	if s.AuditStore == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "audit log disabled", nil)
		return
	}
	q := r.URL.Query()
	filter := auditDomain.Filter{
		Category: auditDomain.Category(q.Get("category")),
		Action:   auditDomain.Action(q.Get("action")),
		Severity: auditDomain.Severity(q.Get("severity")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "limit must be an integer", nil)
			return
		}
		filter.Limit = n
	}
	filter, err := filter.Validate()
	if errors.Is(err, auditDomain.ErrInvalidFilter) {
		writeJSONError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	events, err := s.AuditStore.List(r.Context(), filter)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleDebugPerf handles GET /debug/perf?minutes=N&top=N
func (s *server) handleDebugPerf(w http.ResponseWriter, r *http.Request) {
	if s.Perf == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "perf collector disabled", nil)
		return
	}
	minutes := 15
	if v, err := strconv.Atoi(r.URL.Query().Get("minutes")); err == nil && v > 0 {
		minutes = v
	}
	top := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("top")); err == nil && v > 0 {
		top = v
	}
	writeJSON(w, http.StatusOK, s.Perf.Snapshot(time.Now().Add(-time.Duration(minutes)*time.Minute), top))
}
