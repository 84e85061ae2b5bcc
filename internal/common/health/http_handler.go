package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// HealthCheckHttpHandler answers 204 when checker passes and 503 with the failure text otherwise.
type HealthCheckHttpHandler struct {
	checker Checker
	log     *log.Entry
}

func NewHealthCheckHttpHandler(checker Checker) *HealthCheckHttpHandler {
	return &HealthCheckHttpHandler{
		checker: checker,
		log:     log.WithField("component", "health"),
	}
}

func (h *HealthCheckHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if err := h.checker.Check(); err != nil {
		h.log.WithError(err).Warn("Health check failed")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte(err.Error())); err != nil {
			h.log.WithError(err).Debug("Failed to write health check response")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
