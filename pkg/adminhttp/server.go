// Package adminhttp exposes a minimal operations surface per device
// server — health, metrics, and a read-only device list — deliberately
// distinct from the GUI bridge's broker-envelope dialect.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newtron-network/karabo/pkg/fabric"
)

// Metrics are the process-wide counters surfaced at /metrics, covering
// the three hot paths a production deployment watches: slot calls,
// alarm updates, and heartbeats.
type Metrics struct {
	SlotCalls  *prometheus.CounterVec
	Alarms     *prometheus.CounterVec
	Heartbeats prometheus.Counter
}

// NewMetrics registers a fresh Metrics set against the default
// registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		SlotCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karabo",
			Name:      "slot_calls_total",
			Help:      "Total number of slot calls dispatched, labeled by device and slot.",
		}, []string{"device", "slot", "outcome"}),
		Alarms: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "karabo",
			Name:      "alarm_updates_total",
			Help:      "Total number of alarm row updates emitted, labeled by update type.",
		}, []string{"update_type"}),
		Heartbeats: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "karabo",
			Name:      "heartbeats_total",
			Help:      "Total number of signalHeartbeat emissions sent by this instance.",
		}),
	}
}

// DeviceLister is satisfied by anything that can report the instances
// currently known on the fabric topology (one device server process may
// host several).
type DeviceLister interface {
	Instances() []fabric.InstanceInfo
}

// NewServer builds the chi router for a device server's admin surface:
// GET /healthz, GET /metrics, GET /devices.
func NewServer(lister DeviceLister, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/devices", func(w http.ResponseWriter, r *http.Request) {
		instances := lister.Instances()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(instances)
	})

	return r
}
