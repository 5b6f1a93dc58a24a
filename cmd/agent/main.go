package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // Register camera driver
	"golang.org/x/sync/errgroup"

	"github.com/new-era-ai/facekiosk/internal/camera"
	"github.com/new-era-ai/facekiosk/internal/classify"
	"github.com/new-era-ai/facekiosk/internal/console"
	"github.com/new-era-ai/facekiosk/internal/logger"
	"github.com/new-era-ai/facekiosk/internal/metrics"
	"github.com/new-era-ai/facekiosk/internal/session"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

func main() {
	// Load .env before the flags read their defaults from the
	// environment. A missing file is fine.
	_ = godotenv.Load()

	defaults := types.DefaultConfig()
	var (
		backendURL   = flag.String("backend", envOr("FACEKIOSK_BACKEND", defaults.BackendURL), "Classifier backend base URL")
		consoleAddr  = flag.String("console", envOr("FACEKIOSK_CONSOLE", ":8080"), "Console server address")
		metricsAddr  = flag.String("metrics", envOr("FACEKIOSK_METRICS", ":9090"), "Metrics server address")
		pprofAddr    = flag.String("pprof", envOr("FACEKIOSK_PPROF", ":6060"), "pprof server address")
		cameraDevice = flag.String("camera", envOr("FACEKIOSK_CAMERA", ""), "Camera device ID (empty picks the default)")
		faceInterval = flag.Duration("face-interval", envDurationOr("FACEKIOSK_FACE_INTERVAL", defaults.FaceInterval), "Face polling interval")
		gestInterval = flag.Duration("gesture-interval", envDurationOr("FACEKIOSK_GESTURE_INTERVAL", defaults.GestureInterval), "Gesture polling interval")
		confirmDelay = flag.Duration("confirm-delay", envDurationOr("FACEKIOSK_CONFIRM_DELAY", defaults.ConfirmDelay), "Gesture confirmation delay")
		reqTimeout   = flag.Duration("timeout", envDurationOr("FACEKIOSK_TIMEOUT", defaults.RequestTimeout), "Classifier request timeout")
		jpegQuality  = flag.Int("jpeg-quality", envIntOr("FACEKIOSK_JPEG_QUALITY", defaults.JPEGQuality), "JPEG quality for captured frames")
		enhance      = flag.Bool("enhance", envBoolOr("FACEKIOSK_ENHANCE", true), "Enhance frames before classification")
		logLevel     = flag.String("log-level", envOr("FACEKIOSK_LOG_LEVEL", "info"), "Log level (debug, info, warn, error, silent)")
		logColor     = flag.Bool("log-color", envBoolOr("FACEKIOSK_LOG_COLOR", true), "Enable colored log output")
	)
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "Face kiosk agent starting...")
	logger.Info("Main", "Backend: %s", *backendURL)
	logger.Info("Main", "Console server: %s", *consoleAddr)
	logger.Info("Main", "Metrics server: %s", *metricsAddr)
	logger.Info("Main", "pprof server: %s", *pprofAddr)

	cfg := types.Config{
		BackendURL:      *backendURL,
		RequestTimeout:  *reqTimeout,
		FaceInterval:    *faceInterval,
		GestureInterval: *gestInterval,
		ConfirmDelay:    *confirmDelay,
		EnhanceFrames:   *enhance,
		JPEGQuality:     *jpegQuality,
		CameraDevice:    *cameraDevice,
		ConsoleAddr:     *consoleAddr,
		MetricsAddr:     *metricsAddr,
		PprofAddr:       *pprofAddr,
	}

	m := metrics.New()
	client := classify.NewClient(cfg.BackendURL, cfg.RequestTimeout)
	dev := &camera.MediaDevice{DeviceID: cfg.CameraDevice}

	controller := session.New(cfg, dev, client, m)

	consoleCfg := console.DefaultConfig()
	consoleCfg.Health = client.Health
	consoleSrv := &http.Server{
		Addr:    cfg.ConsoleAddr,
		Handler: console.NewServer(consoleCfg, controller).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Main", "Starting pprof server on %s", cfg.PprofAddr)
		if err := http.ListenAndServe(cfg.PprofAddr, nil); err != nil {
			logger.Warn("Main", "pprof server error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Main", "Starting metrics server on %s", cfg.MetricsAddr)
		if err := m.StartServer(cfg.MetricsAddr); err != nil {
			logger.Warn("Main", "Metrics server error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Main", "Starting console server on %s", cfg.ConsoleAddr)
		if err := consoleSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Main", "Shutting down...")

		controller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return consoleSrv.Shutdown(shutdownCtx)
	})

	controller.Start()

	if err := g.Wait(); err != nil {
		logger.Error("Main", "Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Agent stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
