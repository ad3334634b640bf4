package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aru-oka/occusight/vision-server/internal/camera"
	"github.com/aru-oka/occusight/vision-server/internal/console"
	"github.com/aru-oka/occusight/vision-server/internal/domains"
	"github.com/aru-oka/occusight/vision-server/internal/inference"
	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/metrics"
	"github.com/aru-oka/occusight/vision-server/internal/overlay"
	"github.com/aru-oka/occusight/vision-server/internal/report"
	"github.com/aru-oka/occusight/vision-server/internal/webui"
)

var (
	// Command-line flags
	source      = flag.String("source", "", "Video source: V4L2 device, rtsp:// or http:// URL (empty = synthetic pattern)")
	width       = flag.Int("width", 640, "Capture width")
	height      = flag.Int("height", 480, "Capture height")
	fps         = flag.Int("fps", 15, "Capture and render frame rate")
	httpAddr    = flag.String("http", ":8080", "Web UI address")
	detectorURL = flag.String("detector", "", "Detection service URL (empty = built-in luminance detector)")
	confThresh  = flag.Float64("conf", 0.5, "Detection confidence threshold")
	lumThresh   = flag.Int("lum-threshold", 64, "Luminance threshold for the built-in detector")
	lumMinArea  = flag.Int("lum-min-area", 200, "Minimum component area for the built-in detector")
	class       = flag.String("class", "person", "Tracked detection class")
	interval    = flag.Duration("interval", 500*time.Millisecond, "Detection cycle interval")
	window      = flag.Duration("window", 30*time.Second, "Reporting window")
	reportURL   = flag.String("report", "", "Occupancy report endpoint URL")
	archivePath = flag.String("archive", "", "Report archive sqlite path (empty = disabled)")
	domainsFile = flag.String("domains", "", "Domain file to load at startup (.json / .yml / .yaml)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

// Server wires the pipeline: capture, detection, reporting, overlay
// rendering and the web UI.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics      *metrics.Metrics
	source       *camera.Source
	registry     *domains.Registry
	orchestrator *inference.Orchestrator
	reporter     *report.Reporter
	archive      *report.Archive
	compositor   *overlay.Compositor
	broadcaster  *webui.FrameBroadcaster
	web          *webui.Server
}

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	logger.Info("Main", "vision server starting...")

	srv, err := NewServer()
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Console runs until stdin closes; it never blocks shutdown.
	go console.New(srv.registry, srv.reporter, srv.compositor, os.Stdin, os.Stdout).Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "shutting down...")
	srv.Shutdown()
	logger.Info("Main", "server stopped")
}

// NewServer builds every component. A device that cannot be opened is
// reported to main, which treats it as fatal.
func NewServer() (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()
	registry := domains.NewRegistry()

	var device camera.Device
	if *source == "" {
		logger.Info("Main", "no source configured, using synthetic pattern")
		device = camera.NewPatternDevice(*width, *height, *fps)
	} else {
		device = camera.NewFFmpegDevice(*source, *width, *height, *fps)
	}
	src := camera.NewSource(device, m)

	var archive *report.Archive
	if *archivePath != "" {
		var err error
		archive, err = report.OpenArchive(*archivePath)
		if err != nil {
			cancel()
			return nil, err
		}
	}
	reporter := report.NewReporter(*reportURL, *window, archive, m)

	var detector inference.Detector
	if *detectorURL != "" {
		detector = inference.NewRemoteDetector(*detectorURL, *confThresh)
	} else {
		logger.Info("Main", "no detection service configured, using luminance detector")
		detector = inference.NewLuminanceDetector(uint8(*lumThresh), *lumMinArea, *class)
	}
	orchestrator := inference.NewOrchestrator(detector, registry, *class, *interval, m,
		reporter.UpdateCounts)

	compositor := overlay.NewCompositor(registry)

	cfg := webui.DefaultConfig()
	cfg.Addr = *httpAddr
	broadcaster := webui.NewFrameBroadcaster(cfg.ClientBuffer, m)
	web := webui.NewServer(cfg, registry, compositor, orchestrator, reporter, archive, broadcaster, m)

	if *domainsFile != "" {
		if err := registry.Load(*domainsFile); err != nil {
			logger.Warn("Main", "load domains from %s: %v", *domainsFile, err)
		} else {
			logger.Info("Main", "loaded %d domains from %s", registry.Len(), *domainsFile)
		}
	}

	return &Server{
		ctx:          ctx,
		cancel:       cancel,
		metrics:      m,
		source:       src,
		registry:     registry,
		orchestrator: orchestrator,
		reporter:     reporter,
		archive:      archive,
		compositor:   compositor,
		broadcaster:  broadcaster,
		web:          web,
	}, nil
}

// Start opens the device and launches all loops. Device-open failure
// is returned and treated as fatal by main.
func (s *Server) Start() error {
	if err := s.source.Start(); err != nil {
		return err
	}
	s.orchestrator.Start()
	s.reporter.Start()

	go func() {
		if err := s.web.Start(); err != nil {
			logger.Error("Main", "web server: %v", err)
		}
	}()

	s.wg.Add(1)
	go s.renderLoop()

	logger.Info("Main", "started (source=%q detector=%q report=%q)", *source, *detectorURL, *reportURL)
	return nil
}

// renderInterval converts a frame rate to a ticker period. Zero or
// negative rates fall back to 10fps, same as the pattern device.
func renderInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = 10
	}
	return time.Second / time.Duration(fps)
}

// renderLoop pulls the newest frame, feeds the detection slot and
// publishes the annotated view to stream clients.
func (s *Server) renderLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(renderInterval(*fps))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		frame := s.source.Frame()
		if frame == nil {
			continue
		}

		s.orchestrator.UpdateFrame(frame)

		annotated, err := s.compositor.Render(frame, s.orchestrator.Result())
		if err != nil {
			logger.Warn("Main", "render frame %d: %v", frame.Seq, err)
			continue
		}
		s.broadcaster.Publish(annotated)
	}
}

// Shutdown stops all loops in dependency order with a bounded wait.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.web.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "web shutdown: %v", err)
	}

	s.orchestrator.Stop()
	s.reporter.Stop()
	s.source.Stop()

	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			logger.Warn("Main", "close archive: %v", err)
		}
	}
}
