package types

import "time"

// Config holds the runtime configuration for the session agent.
type Config struct {
	BackendURL      string        // Base URL of the classification backend
	RequestTimeout  time.Duration // Per-request timeout for remote calls
	FaceInterval    time.Duration // Face classification tick period
	GestureInterval time.Duration // Gesture classification tick period
	ConfirmDelay    time.Duration // Feedback delay before a gesture branch fires
	EnhanceFrames   bool          // Apply contrast/brightness normalization
	JPEGQuality     int           // Encoder quality for sampled frames
	CameraDevice    string        // Device ID hint, empty selects the default camera
	ConsoleAddr     string        // Control API address (e.g. ":8080")
	MetricsAddr     string        // Prometheus metrics address (e.g. ":9090")
	PprofAddr       string        // pprof profiling address (e.g. ":6060")
}

// DefaultConfig returns the configuration used when no flag or
// environment override is present.
func DefaultConfig() Config {
	return Config{
		BackendURL:      "http://localhost:5000",
		RequestTimeout:  10 * time.Second,
		FaceInterval:    1500 * time.Millisecond,
		GestureInterval: 700 * time.Millisecond,
		ConfirmDelay:    1800 * time.Millisecond,
		EnhanceFrames:   true,
		JPEGQuality:     90,
		CameraDevice:    "",
		ConsoleAddr:     ":8080",
		MetricsAddr:     ":9090",
		PprofAddr:       ":6060",
	}
}
