package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aru-oka/occusight/vision-server/internal/domains"
	"github.com/aru-oka/occusight/vision-server/internal/inference"
	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/metrics"
	"github.com/aru-oka/occusight/vision-server/internal/overlay"
	"github.com/aru-oka/occusight/vision-server/internal/report"
)

// Server exposes the annotated stream, the pointer websocket and the
// status/report APIs.
type Server struct {
	cfg          Config
	registry     *domains.Registry
	compositor   *overlay.Compositor
	orchestrator *inference.Orchestrator
	reporter     *report.Reporter
	archive      *report.Archive
	broadcaster  *FrameBroadcaster
	m            *metrics.Metrics

	httpServer *http.Server
}

// NewServer wires the web UI over the pipeline components. archive
// may be nil; /api/reports then serves an empty list.
func NewServer(cfg Config, registry *domains.Registry, compositor *overlay.Compositor,
	orchestrator *inference.Orchestrator, reporter *report.Reporter,
	archive *report.Archive, broadcaster *FrameBroadcaster, m *metrics.Metrics) *Server {

	s := &Server{
		cfg:          cfg,
		registry:     registry,
		compositor:   compositor,
		orchestrator: orchestrator,
		reporter:     reporter,
		archive:      archive,
		broadcaster:  broadcaster,
		m:            m,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/stream", s.handleStream)
	r.Get("/ws/pointer", s.handlePointerWS)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/domains", s.handleDomains)
	r.Get("/api/reports", s.handleReports)
	if s.m != nil {
		r.Handle("/metrics", s.m.Handler())
	}
	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	logger.Info("webui", "listening on %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webui: serve: %w", err)
	}
	return nil
}

// Shutdown stops the server and disconnects stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.broadcaster.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

// handleStream serves multipart MJPEG from a broadcaster
// subscription. An idle stream gets a blank keep-alive frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, frameCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	blank, err := blankJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	for {
		var jpegData []byte
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-frameCh:
			if !ok {
				return
			}
			jpegData = data
		case <-time.After(s.cfg.KeepAlive):
			jpegData = blank
		}

		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("webui", "stream client %s write: %v", id, err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("webui", "stream client %s frame write: %v", id, err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	frameW, frameH := s.compositor.FrameSize()
	sel := s.registry.Selection()

	payload := map[string]any{
		"frame": map[string]int{
			"width":  frameW,
			"height": frameH,
		},
		"domains":         s.registry.List(),
		"report_endpoint": s.reporter.Endpoint(),
		"stream_clients":  s.broadcaster.ClientCount(),
		"selection": map[string]any{
			"active": sel.Active,
			"name":   sel.Name,
		},
	}
	if result := s.orchestrator.Result(); result != nil {
		payload["counts"] = result.DomainCounts
		payload["frame_seq"] = result.FrameSeq
		payload["detections"] = len(result.Detections)
	}
	writeJSON(w, payload)
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.registry.List())
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, []report.ArchivedReport{})
		return
	}
	rows, err := s.archive.Recent(s.cfg.RecentReports)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []report.ArchivedReport{}
	}
	writeJSON(w, rows)
}

// blankJPEG renders the keep-alive frame shown before the first
// camera frame arrives.
func blankJPEG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{32, 32, 32, 255}}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
