package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/metrics"
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// Source runs a capture loop against a Device and keeps only the
// most recent frame. Consumers poll Frame at their own pace; frames
// that arrive between polls are overwritten, never queued.
type Source struct {
	device Device
	m      *metrics.Metrics

	mu       sync.Mutex
	latest   *types.Frame
	consumed bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSource creates a frame source over the given device.
func NewSource(device Device, m *metrics.Metrics) *Source {
	return &Source{
		device: device,
		m:      m,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start opens the device and launches the capture loop. An open
// failure is returned to the caller; the loop is not started.
func (s *Source) Start() error {
	if err := s.device.Open(); err != nil {
		return fmt.Errorf("camera: open device: %w", err)
	}
	go s.run()
	return nil
}

func (s *Source) run() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		frame, err := s.device.ReadFrame()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			logger.Warn("camera", "read frame: %v", err)
			if s.m != nil {
				s.m.CaptureErrors.Add(1)
			}
			select {
			case <-s.stopCh:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		s.mu.Lock()
		if s.latest != nil && !s.consumed && s.m != nil {
			s.m.FramesDropped.Add(1)
		}
		s.latest = frame
		s.consumed = false
		s.mu.Unlock()

		if s.m != nil {
			s.m.FramesCaptured.Add(1)
		}
	}
}

// Frame returns a deep copy of the most recent frame, or nil if no
// frame has been captured yet.
func (s *Source) Frame() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil
	}
	s.consumed = true
	return s.latest.Clone()
}

// Stop shuts down the capture loop and closes the device. It waits
// for the loop to exit, but never longer than two seconds.
func (s *Source) Stop() {
	close(s.stopCh)
	s.device.Close()

	select {
	case <-s.doneCh:
	case <-time.After(2 * time.Second):
		logger.Warn("camera", "capture loop did not stop in time")
	}
}
