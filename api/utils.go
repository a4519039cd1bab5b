package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"billtrack/database"
	"billtrack/logger"
	"billtrack/service"
)

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// getBoolParam retrieves a boolean query parameter; invalid values yield an error
func getBoolParam(r *http.Request, key string, defaultVal bool) (bool, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(valStr)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string, err error) {
	log := logger.FromContext(r.Context())
	if err != nil {
		log.Warn().Err(err).Int("status", code).Msg(message)
	} else {
		log.Warn().Int("status", code).Msg(message)
	}
	writeJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps service and storage errors to status codes
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		respondWithError(w, r, http.StatusConflict, "run already in progress for this user", err)
	case database.IsNotFound(err):
		respondWithError(w, r, http.StatusNotFound, "not found", err)
	default:
		respondWithError(w, r, http.StatusInternalServerError, "internal error", err)
	}
}
