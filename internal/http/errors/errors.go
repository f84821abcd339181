// Package errors centralizes error responses and request-scoped logging for
// the calendar API. Error bodies are JSON like every other API response, and
// internal failure details stay in the log, never in the body.
package errors

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

func InternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	logf(r, "ERROR", "%s: %v", message, err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func BadRequestError(w http.ResponseWriter, r *http.Request, err error, clientMessage string) {
	logf(r, "WARN", "bad request: %v", err)
	writeError(w, http.StatusBadRequest, clientMessage)
}

// LogError records a request-scoped error without writing a response. The
// webhook handler uses this for notifications it drops but still acks 200.
func LogError(r *http.Request, message string, err error) {
	logf(r, "ERROR", "%s: %v", message, err)
}

func LogInfo(r *http.Request, message string) {
	logf(r, "INFO", "%s", message)
}

func logf(r *http.Request, level, format string, args ...any) {
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		log.Printf("["+level+"] RequestID="+reqID+": "+format, args...)
		return
	}
	log.Printf("["+level+"] "+format, args...)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
