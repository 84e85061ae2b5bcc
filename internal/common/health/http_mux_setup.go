package health

import (
	"net/http"
)

// SetupHttpMux serves checker on GET /health.
func SetupHttpMux(mux *http.ServeMux, checker Checker) {
	mux.Handle("GET /health", NewHealthCheckHttpHandler(checker))
}
