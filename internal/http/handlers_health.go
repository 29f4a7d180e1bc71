package httpx

import (
	"io"
	"net/http"
)

const rootResponse = `{"status":"ok","message":"Task Queue Service is running"}`

// rootHandler reports service identity and readiness at the API root.
func rootHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, rootResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, "ok"); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}
