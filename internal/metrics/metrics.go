package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all session agent metrics.
type Metrics struct {
	// Camera lifecycle
	CameraAcquisitions atomic.Uint64
	CameraFailures     atomic.Uint64
	CameraReleases     atomic.Uint64

	// Frame sampling
	FramesSampled atomic.Uint64
	SampleSkips   atomic.Uint64 // source not ready

	// Face classification
	FaceRequests      atomic.Uint64
	FaceRetries       atomic.Uint64
	FaceServiceErrors atomic.Uint64
	Authentications   atomic.Uint64
	RegisterPrompts   atomic.Uint64

	// Gesture detection
	GestureRequests  atomic.Uint64
	GestureErrors    atomic.Uint64
	GestureDecisions atomic.Uint64
	ManualOverrides  atomic.Uint64

	// State machine
	ViewTransitions atomic.Uint64
	Restarts        atomic.Uint64
	Registrations   atomic.Uint64
	GuestLogins     atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered on a
// private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.register()
	return m
}

func (m *Metrics) register() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"facekiosk_camera_acquisitions_total", "Total successful camera acquisitions", m.CameraAcquisitions.Load},
		{"facekiosk_camera_failures_total", "Total acquisitions where every tier failed", m.CameraFailures.Load},
		{"facekiosk_camera_releases_total", "Total camera session releases", m.CameraReleases.Load},
		{"facekiosk_frames_sampled_total", "Total frames sampled and encoded", m.FramesSampled.Load},
		{"facekiosk_sample_skips_total", "Total ticks skipped because no frame was ready", m.SampleSkips.Load},
		{"facekiosk_face_requests_total", "Total face classification requests", m.FaceRequests.Load},
		{"facekiosk_face_retries_total", "Total recoverable face classification rejections", m.FaceRetries.Load},
		{"facekiosk_face_service_errors_total", "Total face classification transport failures", m.FaceServiceErrors.Load},
		{"facekiosk_authentications_total", "Total successful face authentications", m.Authentications.Load},
		{"facekiosk_register_prompts_total", "Total register prompts received", m.RegisterPrompts.Load},
		{"facekiosk_gesture_requests_total", "Total gesture classification requests", m.GestureRequests.Load},
		{"facekiosk_gesture_errors_total", "Total gesture classification failures", m.GestureErrors.Load},
		{"facekiosk_gesture_decisions_total", "Total gesture branch decisions", m.GestureDecisions.Load},
		{"facekiosk_manual_overrides_total", "Total manual gesture fallback uses", m.ManualOverrides.Load},
		{"facekiosk_view_transitions_total", "Total view state transitions", m.ViewTransitions.Load},
		{"facekiosk_restarts_total", "Total session restarts/logouts", m.Restarts.Load},
		{"facekiosk_registrations_total", "Total completed registrations", m.Registrations.Load},
		{"facekiosk_guest_logins_total", "Total guest access grants", m.GuestLogins.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
