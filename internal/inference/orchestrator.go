package inference

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	_ "image/jpeg" // frame decoding
	"strings"
	"sync"
	"time"

	"github.com/aru-oka/occusight/vision-server/internal/domains"
	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/metrics"
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// Orchestrator runs the detection loop. Each cycle it snapshots the
// pending frame and the domain table, invokes the detector once per
// domain (or once for the whole frame when no domains exist), and
// publishes an aggregated result. Frames and results live in
// latest-value slots; a frame that arrives mid-cycle simply replaces
// the pending one.
type Orchestrator struct {
	detector Detector
	registry *domains.Registry
	class    string
	interval time.Duration
	m        *metrics.Metrics

	// onCounts receives the per-domain counts of each cycle that
	// processed at least one domain.
	onCounts func(counts map[string]int)

	mu      sync.Mutex
	pending *types.Frame
	result  *types.InferenceResult

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewOrchestrator creates the detection loop. trackedClass is matched
// case-insensitively against detector class labels when counting.
// onCounts may be nil.
func NewOrchestrator(detector Detector, registry *domains.Registry, trackedClass string,
	interval time.Duration, m *metrics.Metrics, onCounts func(map[string]int)) *Orchestrator {

	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		detector: detector,
		registry: registry,
		class:    trackedClass,
		interval: interval,
		m:        m,
		onCounts: onCounts,
		ctx:      ctx,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
	}
}

// UpdateFrame overwrites the pending frame slot. The orchestrator
// takes ownership of the frame.
func (o *Orchestrator) UpdateFrame(frame *types.Frame) {
	o.mu.Lock()
	o.pending = frame
	o.mu.Unlock()
}

// Result returns the most recently published result, or nil before
// the first completed cycle. The result is immutable once published.
func (o *Orchestrator) Result() *types.InferenceResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Start launches the detection loop.
func (o *Orchestrator) Start() {
	go o.run()
}

// Stop cancels any in-flight detector call and waits for the loop to
// exit, but never longer than the detector timeout allows.
func (o *Orchestrator) Stop() {
	o.cancel()
	select {
	case <-o.doneCh:
	case <-time.After(5 * time.Second):
		logger.Warn("inference", "detection loop did not stop in time")
	}
}

func (o *Orchestrator) run() {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		frame := o.pending
		o.mu.Unlock()
		if frame == nil {
			continue
		}

		o.cycle(frame)
	}
}

// cycle processes one frame. A detector failure logs, increments the
// error counter, and abandons the cycle without publishing.
func (o *Orchestrator) cycle(frame *types.Frame) {
	started := time.Now()

	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		logger.Warn("inference", "decode frame %d: %v", frame.Seq, err)
		return
	}
	bounds := img.Bounds()
	frameW := bounds.Dx()
	frameH := bounds.Dy()
	if frameW == 0 || frameH == 0 {
		return
	}

	table := o.registry.List()

	result := &types.InferenceResult{
		Detections:   []types.Detection{},
		DomainCounts: make(map[string]int, len(table)),
		Timestamp:    frame.Timestamp,
		FrameSeq:     frame.Seq,
	}

	if len(table) == 0 {
		raw, err := o.detector.Detect(o.ctx, img)
		if err != nil {
			o.detectFailed(frame, err)
			return
		}
		for _, det := range raw {
			if !strings.EqualFold(det.Class, o.class) {
				continue
			}
			result.Detections = append(result.Detections,
				o.toFrameDetection(det, 0, 0, frameW, frameH, ""))
		}
	} else {
		for _, dom := range table {
			count, dets, err := o.detectDomain(img, dom, frameW, frameH)
			if err != nil {
				o.detectFailed(frame, err)
				return
			}
			result.DomainCounts[dom.Name] = count
			result.Detections = append(result.Detections, dets...)
		}
	}

	o.mu.Lock()
	o.result = result
	o.mu.Unlock()

	if o.m != nil {
		o.m.Cycles.Add(1)
		o.m.Detections.Add(uint64(len(result.Detections)))
		o.m.UpdateCycleLatency(time.Since(started))
	}

	if o.onCounts != nil && len(result.DomainCounts) > 0 {
		o.onCounts(result.DomainCounts)
	}
}

func (o *Orchestrator) detectFailed(frame *types.Frame, err error) {
	logger.Error("inference", "detector failed on frame %d: %v", frame.Seq, err)
	if o.m != nil {
		o.m.DetectorErrors.Add(1)
	}
}

// detectDomain converts the domain to pixel space, clips it to the
// frame, and runs the detector on the cropped region. A domain that
// clips to nothing yields count 0 and no detections.
func (o *Orchestrator) detectDomain(img image.Image, dom types.Domain, frameW, frameH int) (int, []types.Detection, error) {
	x1, y1, x2, y2 := dom.Rect.Pixels(frameW, frameH)

	x1 = clamp(x1, 0, frameW)
	y1 = clamp(y1, 0, frameH)
	x2 = clamp(x2, 0, frameW)
	y2 = clamp(y2, 0, frameH)
	if x2 <= x1 || y2 <= y1 {
		return 0, nil, nil
	}

	crop := cropRegion(img, image.Rect(x1, y1, x2, y2))

	raw, err := o.detector.Detect(o.ctx, crop)
	if err != nil {
		return 0, nil, err
	}

	// Only the tracked class survives; everything else the detector
	// saw is discarded.
	dets := make([]types.Detection, 0, len(raw))
	for _, det := range raw {
		if !strings.EqualFold(det.Class, o.class) {
			continue
		}
		dets = append(dets, o.toFrameDetection(det, x1, y1, frameW, frameH, dom.Name))
	}
	return len(dets), dets, nil
}

// toFrameDetection translates a region-local box by the crop origin
// and normalizes it by the full frame dimensions.
func (o *Orchestrator) toFrameDetection(det RawDetection, originX, originY, frameW, frameH int, domain string) types.Detection {
	w := float64(frameW)
	h := float64(frameH)
	return types.Detection{
		Rect: types.Rect{
			X1: float64(originX+det.X1) / w,
			Y1: float64(originY+det.Y1) / h,
			X2: float64(originX+det.X2) / w,
			Y2: float64(originY+det.Y2) / h,
		},
		Confidence: det.Confidence,
		Class:      det.Class,
		Domain:     domain,
	}
}

// cropRegion copies the rectangle into a zero-origin image so the
// detector sees region-local coordinates.
func cropRegion(img image.Image, rect image.Rectangle) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
