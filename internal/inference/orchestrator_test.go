package inference

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"testing"
	"time"

	"github.com/aru-oka/occusight/vision-server/internal/domains"
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// scriptDetector returns a fixed answer on every call.
type scriptDetector struct {
	dets  []RawDetection
	err   error
	calls int
}

func (d *scriptDetector) Detect(ctx context.Context, img image.Image) ([]RawDetection, error) {
	d.calls++
	return d.dets, d.err
}

// testFrame encodes a light frame with dark blocks at the given
// pixel rectangles.
func testFrame(t *testing.T, w, h int, blocks ...image.Rectangle) *types.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{230, 230, 230, 255}}, image.Point{}, draw.Src)
	for _, b := range blocks {
		draw.Draw(img, b, &image.Uniform{color.RGBA{10, 10, 10, 255}}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return &types.Frame{Data: buf.Bytes(), Width: w, Height: h, Timestamp: time.Now(), Seq: 1}
}

func registryWith(t *testing.T, doms ...types.Domain) *domains.Registry {
	t.Helper()
	r := domains.NewRegistry()
	for _, d := range doms {
		if err := r.Add(d.Name, d.Rect); err != nil {
			t.Fatalf("add %q: %v", d.Name, err)
		}
	}
	return r
}

func TestCycleDisjointDomainsPartitionCounts(t *testing.T) {
	// One dark block in each half of a 200x100 frame.
	frame := testFrame(t, 200, 100,
		image.Rect(20, 30, 50, 70),
		image.Rect(140, 30, 170, 70),
	)
	reg := registryWith(t,
		types.Domain{Name: "left", Rect: types.Rect{X1: 0, Y1: 0, X2: 0.5, Y2: 1}},
		types.Domain{Name: "right", Rect: types.Rect{X1: 0.5, Y1: 0, X2: 1, Y2: 1}},
	)

	var reported map[string]int
	o := NewOrchestrator(NewLuminanceDetector(128, 50, "person"), reg, "person",
		time.Second, nil, func(c map[string]int) { reported = c })
	o.cycle(frame)

	result := o.Result()
	if result == nil {
		t.Fatal("no result published")
	}
	if result.DomainCounts["left"] != 1 || result.DomainCounts["right"] != 1 {
		t.Fatalf("unexpected counts: %v", result.DomainCounts)
	}

	// Disjoint domains: per-domain counts sum to the total tracked
	// detections across all crops.
	total := 0
	for _, det := range result.Detections {
		if det.Domain == "" {
			t.Fatalf("detection missing domain tag: %+v", det)
		}
		total++
	}
	sum := result.DomainCounts["left"] + result.DomainCounts["right"]
	if sum != total {
		t.Fatalf("counts sum %d != total detections %d", sum, total)
	}

	if reported == nil || reported["left"] != 1 {
		t.Fatalf("counts hook not invoked correctly: %v", reported)
	}
}

func TestCycleDetectionBoxesTranslatedToFrameSpace(t *testing.T) {
	// Block in the right half; its frame-space box must land near
	// the block even though the detector only saw the crop.
	frame := testFrame(t, 200, 100, image.Rect(140, 30, 170, 70))
	reg := registryWith(t,
		types.Domain{Name: "right", Rect: types.Rect{X1: 0.5, Y1: 0, X2: 1, Y2: 1}},
	)

	o := NewOrchestrator(NewLuminanceDetector(128, 50, "person"), reg, "person", time.Second, nil, nil)
	o.cycle(frame)

	result := o.Result()
	if result == nil || len(result.Detections) != 1 {
		t.Fatalf("expected one detection, got %+v", result)
	}
	rect := result.Detections[0].Rect
	// 140/200 = 0.70, 170/200 = 0.85; allow jpeg edge blur.
	if rect.X1 < 0.65 || rect.X1 > 0.75 || rect.X2 < 0.80 || rect.X2 > 0.90 {
		t.Fatalf("box not translated to frame space: %+v", rect)
	}
}

func TestCycleDomainOutsideFrameCountsZero(t *testing.T) {
	frame := testFrame(t, 200, 100, image.Rect(20, 30, 50, 70))
	reg := registryWith(t,
		types.Domain{Name: "offscreen", Rect: types.Rect{X1: 1.2, Y1: 1.2, X2: 1.8, Y2: 1.8}},
	)

	det := &scriptDetector{dets: []RawDetection{{Class: "person", Confidence: 0.9, X2: 5, Y2: 5}}}
	o := NewOrchestrator(det, reg, "person", time.Second, nil, nil)
	o.cycle(frame)

	result := o.Result()
	if result == nil {
		t.Fatal("no result published")
	}
	if result.DomainCounts["offscreen"] != 0 {
		t.Fatalf("expected count 0, got %d", result.DomainCounts["offscreen"])
	}
	if len(result.Detections) != 0 {
		t.Fatalf("offscreen domain produced detections: %+v", result.Detections)
	}
	if det.calls != 0 {
		t.Fatalf("detector invoked %d times for a degenerate crop", det.calls)
	}
}

func TestCycleDegenerateDomainCountsZero(t *testing.T) {
	frame := testFrame(t, 200, 100)
	reg := registryWith(t,
		types.Domain{Name: "line", Rect: types.Rect{X1: 0.3, Y1: 0.4, X2: 0.3, Y2: 0.9}},
	)

	det := &scriptDetector{}
	o := NewOrchestrator(det, reg, "person", time.Second, nil, nil)
	o.cycle(frame)

	result := o.Result()
	if result == nil || result.DomainCounts["line"] != 0 {
		t.Fatalf("expected count 0 for degenerate domain, got %+v", result)
	}
}

func TestCycleOverlappingDomainsCountIndependently(t *testing.T) {
	frame := testFrame(t, 200, 100, image.Rect(80, 30, 120, 70))
	// Both domains fully contain the block.
	reg := registryWith(t,
		types.Domain{Name: "wide", Rect: types.Rect{X1: 0.2, Y1: 0, X2: 0.8, Y2: 1}},
		types.Domain{Name: "wider", Rect: types.Rect{X1: 0.1, Y1: 0, X2: 0.9, Y2: 1}},
	)

	o := NewOrchestrator(NewLuminanceDetector(128, 50, "person"), reg, "person", time.Second, nil, nil)
	o.cycle(frame)

	result := o.Result()
	if result == nil {
		t.Fatal("no result published")
	}
	if result.DomainCounts["wide"] != 1 || result.DomainCounts["wider"] != 1 {
		t.Fatalf("overlapping domains must each count the object: %v", result.DomainCounts)
	}
}

func TestCycleEmptyTableScansWholeFrame(t *testing.T) {
	frame := testFrame(t, 200, 100, image.Rect(20, 30, 50, 70))

	var hookCalls int
	o := NewOrchestrator(NewLuminanceDetector(128, 50, "person"), domains.NewRegistry(),
		"person", time.Second, nil, func(map[string]int) { hookCalls++ })
	o.cycle(frame)

	result := o.Result()
	if result == nil || len(result.Detections) != 1 {
		t.Fatalf("expected one whole-frame detection, got %+v", result)
	}
	if result.Detections[0].Domain != "" {
		t.Fatalf("whole-frame detection must be untagged: %+v", result.Detections[0])
	}
	if len(result.DomainCounts) != 0 {
		t.Fatalf("expected no counts without domains: %v", result.DomainCounts)
	}
	if hookCalls != 0 {
		t.Fatal("counts hook invoked without domains")
	}
}

func TestCycleDetectorFailureSkipsCycle(t *testing.T) {
	frame := testFrame(t, 200, 100)
	reg := registryWith(t,
		types.Domain{Name: "gate", Rect: types.Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}},
	)

	det := &scriptDetector{err: errors.New("model crashed")}
	var hookCalls int
	o := NewOrchestrator(det, reg, "person", time.Second, nil, func(map[string]int) { hookCalls++ })
	o.cycle(frame)

	if o.Result() != nil {
		t.Fatal("failed cycle must not publish a result")
	}
	if hookCalls != 0 {
		t.Fatal("failed cycle must not report counts")
	}
}

func TestCycleTrackedClassMatchIsCaseInsensitive(t *testing.T) {
	frame := testFrame(t, 200, 100)
	reg := registryWith(t,
		types.Domain{Name: "gate", Rect: types.Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}},
	)

	det := &scriptDetector{dets: []RawDetection{
		{Class: "Person", Confidence: 0.9, X2: 10, Y2: 10},
		{Class: "PERSON", Confidence: 0.8, X1: 20, Y1: 20, X2: 30, Y2: 30},
		{Class: "chair", Confidence: 0.9, X1: 40, Y1: 40, X2: 50, Y2: 50},
	}}
	o := NewOrchestrator(det, reg, "person", time.Second, nil, nil)
	o.cycle(frame)

	result := o.Result()
	if result == nil {
		t.Fatal("no result published")
	}
	if result.DomainCounts["gate"] != 2 {
		t.Fatalf("expected 2 tracked detections, got %d", result.DomainCounts["gate"])
	}
	if len(result.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(result.Detections))
	}
}

func TestCycleDropsUntrackedClasses(t *testing.T) {
	frame := testFrame(t, 200, 100)
	det := &scriptDetector{dets: []RawDetection{
		{Class: "person", Confidence: 0.9, X2: 10, Y2: 10},
		{Class: "chair", Confidence: 0.9, X1: 40, Y1: 40, X2: 50, Y2: 50},
	}}

	// Domain path: only the tracked class survives into detections.
	reg := registryWith(t,
		types.Domain{Name: "gate", Rect: types.Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}},
	)
	o := NewOrchestrator(det, reg, "person", time.Second, nil, nil)
	o.cycle(frame)

	result := o.Result()
	if result == nil {
		t.Fatal("no result published")
	}
	if len(result.Detections) != 1 || result.Detections[0].Class != "person" {
		t.Fatalf("untracked class leaked into result: %+v", result.Detections)
	}
	if result.DomainCounts["gate"] != 1 {
		t.Fatalf("expected count 1, got %d", result.DomainCounts["gate"])
	}

	// Whole-frame path: same filter applies.
	o2 := NewOrchestrator(det, domains.NewRegistry(), "person", time.Second, nil, nil)
	o2.cycle(frame)

	result = o2.Result()
	if result == nil {
		t.Fatal("no whole-frame result published")
	}
	if len(result.Detections) != 1 || result.Detections[0].Class != "person" {
		t.Fatalf("untracked class leaked into whole-frame result: %+v", result.Detections)
	}
}

func TestUpdateFrameKeepsLatest(t *testing.T) {
	o := NewOrchestrator(&scriptDetector{}, domains.NewRegistry(), "person", time.Second, nil, nil)
	a := testFrame(t, 20, 20)
	a.Seq = 1
	b := testFrame(t, 20, 20)
	b.Seq = 2

	o.UpdateFrame(a)
	o.UpdateFrame(b)

	o.mu.Lock()
	seq := o.pending.Seq
	o.mu.Unlock()
	if seq != 2 {
		t.Fatalf("pending slot holds seq %d, want 2", seq)
	}
}
