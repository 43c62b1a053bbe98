package health

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/vigil/internal/resilience"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CaptureAlive reports readiness of the audio path: alive must return true
// while the capture pump goroutine is running.
func CaptureAlive(alive func() bool) Checker {
	return Checker{
		Name: "capture",
		Check: func(context.Context) error {
			if !alive() {
				return errors.New("capture pump is not running")
			}
			return nil
		},
	}
}

// BackendReachable reports readiness of the chat backend: an open circuit
// breaker means recent calls failed consistently.
func BackendReachable(state func() resilience.State) Checker {
	return Checker{
		Name: "backend",
		Check: func(context.Context) error {
			if s := state(); s == resilience.StateOpen {
				return errors.New("circuit breaker is open")
			}
			return nil
		},
	}
}

// RegisterMetrics adds the Prometheus scrape route to mux. The OTel metrics
// flow into the default Prometheus registry via the exporter bridge set up
// in observe.InitProvider.
func RegisterMetrics(mux *http.ServeMux) {
	mux.Handle("GET /metrics", promhttp.Handler())
}
