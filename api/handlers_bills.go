package api

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// handleHealth probes the registered dependencies
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": deps})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}

// handleRegenerate recomputes a user's bills. ?dry_run=true returns the
// computed set without writing it.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		respondWithError(w, r, http.StatusBadRequest, "user id is required", nil)
		return
	}
	dryRun, err := getBoolParam(r, "dry_run", false)
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "dry_run must be true or false", err)
		return
	}

	report, err := s.bills.Regenerate(r.Context(), id, dryRun)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleScanUser(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		respondWithError(w, r, http.StatusBadRequest, "user id is required", nil)
		return
	}

	report, err := s.bills.Scan(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleScanAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.bills.ScanAll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetBills(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		respondWithError(w, r, http.StatusBadRequest, "user id is required", nil)
		return
	}

	bills, err := s.bills.ListBills(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": id,
		"bills":   bills,
		"count":   len(bills),
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		respondWithError(w, r, http.StatusBadRequest, "user id is required", nil)
		return
	}
	minLimit, maxLimit := 1, maxEventLimit
	limit := getIntParam(r, "limit", defaultEventLimit, &minLimit, &maxLimit)

	events, err := s.bills.ListEvents(r.Context(), id, limit)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": id,
		"events":  events,
		"count":   len(events),
	})
}
