package domains

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

func down(x, y float64) types.PointerEvent {
	return types.PointerEvent{Kind: types.PointerDown, X: x, Y: y, FrameWidth: 1000, FrameHeight: 500}
}

func altDown() types.PointerEvent {
	return types.PointerEvent{Kind: types.PointerAltDown, FrameWidth: 1000, FrameHeight: 500}
}

// beginAsync runs BeginSelection in a goroutine and returns a channel
// carrying its result.
func beginAsync(t *testing.T, r *Registry, name string) <-chan error {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- r.BeginSelection(name) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Selection().Active {
			return result
		}
		select {
		case err := <-result:
			t.Fatalf("BeginSelection returned early: %v", err)
		default:
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("selection never armed")
	return result
}

func await(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("BeginSelection did not resolve")
		return nil
	}
}

func TestSelectionTwoClicks(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	r.HandlePointer(down(100, 50))
	r.HandlePointer(down(300, 150))

	if err := await(t, result); err != nil {
		t.Fatalf("selection failed: %v", err)
	}

	got := r.List()
	if len(got) != 1 || got[0].Name != "gate" {
		t.Fatalf("unexpected table: %+v", got)
	}
	want := types.Rect{X1: 0.10, Y1: 0.10, X2: 0.30, Y2: 0.30}
	rect := got[0].Rect
	for _, pair := range [][2]float64{
		{rect.X1, want.X1}, {rect.Y1, want.Y1}, {rect.X2, want.X2}, {rect.Y2, want.Y2},
	} {
		if math.Abs(pair[0]-pair[1]) > 1e-9 {
			t.Fatalf("rect mismatch: got %+v, want %+v", rect, want)
		}
	}
}

func TestSelectionCornersNormalizeRegardlessOfOrder(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	// Second corner up-left of the first.
	r.HandlePointer(down(300, 150))
	r.HandlePointer(down(100, 50))

	if err := await(t, result); err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	rect := r.List()[0].Rect
	if rect.X1 > rect.X2 || rect.Y1 > rect.Y2 {
		t.Fatalf("corners not ordered: %+v", rect)
	}
}

func TestSelectionDuplicateNameFailsImmediately(t *testing.T) {
	r := NewRegistry()
	mustAdd(t, r, "gate", types.Rect{X2: 1, Y2: 1})

	if err := r.BeginSelection("gate"); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestSelectionSecondSelectionRejected(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	if err := r.BeginSelection("other"); !errors.Is(err, ErrSelectionActive) {
		t.Fatalf("expected ErrSelectionActive, got %v", err)
	}

	r.HandlePointer(down(0, 0))
	r.HandlePointer(down(10, 10))
	if err := await(t, result); err != nil {
		t.Fatalf("first selection failed: %v", err)
	}
}

func TestSelectionAltClearsAnchorOnly(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	r.HandlePointer(down(900, 400))
	r.HandlePointer(altDown())

	if view := r.Selection(); !view.Active || view.HasAnchor {
		t.Fatalf("expected armed selection without anchor, got %+v", view)
	}

	// The protocol is still armed; a fresh pair of clicks commits.
	r.HandlePointer(down(100, 50))
	r.HandlePointer(down(300, 150))
	if err := await(t, result); err != nil {
		t.Fatalf("selection failed after re-anchoring: %v", err)
	}
	if rect := r.List()[0].Rect; math.Abs(rect.X2-0.30) > 1e-9 {
		t.Fatalf("committed rect uses the discarded anchor: %+v", rect)
	}
}

func TestSelectionAltWithoutAnchorCancels(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	r.HandlePointer(altDown())

	if err := await(t, result); !errors.Is(err, ErrSelectionCancelled) {
		t.Fatalf("expected ErrSelectionCancelled, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatal("cancelled selection committed a domain")
	}
	if r.Selection().Active {
		t.Fatal("selection still pending after cancel")
	}
}

func TestSelectionNoFrameDimensions(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	r.HandlePointer(types.PointerEvent{Kind: types.PointerDown, X: 10, Y: 10})
	r.HandlePointer(types.PointerEvent{Kind: types.PointerDown, X: 50, Y: 50})

	if err := await(t, result); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatal("selection without frame dimensions committed a domain")
	}
}

func TestSelectionIgnoresMoveAndUp(t *testing.T) {
	r := NewRegistry()
	result := beginAsync(t, r, "gate")

	r.HandlePointer(types.PointerEvent{Kind: types.PointerMove, X: 5, Y: 5, FrameWidth: 1000, FrameHeight: 500})
	r.HandlePointer(types.PointerEvent{Kind: types.PointerUp, X: 5, Y: 5, FrameWidth: 1000, FrameHeight: 500})

	if view := r.Selection(); !view.Active || view.HasAnchor {
		t.Fatalf("move/up events advanced the protocol: %+v", view)
	}

	r.HandlePointer(down(0, 0))
	r.HandlePointer(down(100, 100))
	if err := await(t, result); err != nil {
		t.Fatalf("selection failed: %v", err)
	}
}
