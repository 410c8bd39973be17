package health

import (
	"fmt"
	"net/http"
)

// ReadinessReporter is implemented by components that know whether they
// are able to serve, e.g. the invalidation consumer after its first
// partition assignment.
type ReadinessReporter interface {
	Readiness() (ready bool, detail string)
}

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func Readiness(r ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		ready, detail := r.Readiness()
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "not ready: %s", detail)
			return
		}
		_, _ = fmt.Fprintf(w, "ready: %s", detail)
	}
}
