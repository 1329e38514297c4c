package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"fhir-relay/internal/metrics"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging tags each request with an ID, logs it and records its
// duration.
func (a *Application) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		elapsed := time.Since(start)
		pattern := r.Pattern
		if pattern == "" {
			pattern = r.URL.Path
		}
		metrics.RequestDuration.WithLabelValues(pattern, strconv.Itoa(recorder.status)).Observe(elapsed.Seconds())
		a.Logger.Printf("request_id=%s %s %s -> %d (%s)", requestID, r.Method, r.URL.Path, recorder.status, elapsed)
	})
}
