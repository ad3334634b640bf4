package domains

import (
	"fmt"

	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

type selectionState int

const (
	awaitingFirstCorner selectionState = iota
	awaitingSecondCorner
)

// selection is the pending two-click definition. The blocked
// BeginSelection caller waits on done; HandlePointer resolves it.
type selection struct {
	name    string
	state   selectionState
	anchorX float64
	anchorY float64
	done    chan error
}

// SelectionView is a snapshot of the pending selection, consumed by
// the renderer for the live preview.
type SelectionView struct {
	Active    bool
	Name      string
	HasAnchor bool
	AnchorX   float64
	AnchorY   float64
}

// BeginSelection arms the two-click definition protocol for the
// given name and blocks until the protocol resolves: the second
// corner commits the domain, or the user cancels. It fails
// immediately with ErrDuplicateName if the name is taken and with
// ErrSelectionActive if another selection is pending.
func (r *Registry) BeginSelection(name string) error {
	r.mu.Lock()
	if _, ok := r.domains[name]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if r.sel != nil {
		r.mu.Unlock()
		return ErrSelectionActive
	}

	sel := &selection{
		name:  name,
		state: awaitingFirstCorner,
		done:  make(chan error, 1),
	}
	r.sel = sel
	r.mu.Unlock()

	return <-sel.done
}

// Selection returns a snapshot of the pending selection state.
func (r *Registry) Selection() SelectionView {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sel == nil {
		return SelectionView{}
	}
	return SelectionView{
		Active:    true,
		Name:      r.sel.name,
		HasAnchor: r.sel.state == awaitingSecondCorner,
		AnchorX:   r.sel.anchorX,
		AnchorY:   r.sel.anchorY,
	}
}

// HandlePointer feeds one pointer event into the selection protocol.
// Events arriving while no selection is pending are ignored. The
// event's coordinates are frame pixels; its frame dimensions are
// used to normalize when the second corner commits.
func (r *Registry) HandlePointer(ev types.PointerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sel == nil {
		return
	}

	switch ev.Kind {
	case types.PointerDown:
		r.pointerDownLocked(ev)
	case types.PointerAltDown:
		r.altDownLocked()
	}
}

func (r *Registry) pointerDownLocked(ev types.PointerEvent) {
	sel := r.sel

	switch sel.state {
	case awaitingFirstCorner:
		sel.anchorX = ev.X
		sel.anchorY = ev.Y
		sel.state = awaitingSecondCorner

	case awaitingSecondCorner:
		r.sel = nil

		if ev.FrameWidth <= 0 || ev.FrameHeight <= 0 {
			sel.done <- ErrNoFrame
			return
		}

		x1 := min(sel.anchorX, ev.X)
		y1 := min(sel.anchorY, ev.Y)
		x2 := max(sel.anchorX, ev.X)
		y2 := max(sel.anchorY, ev.Y)

		w := float64(ev.FrameWidth)
		h := float64(ev.FrameHeight)
		rect := types.Rect{
			X1: x1 / w,
			Y1: y1 / h,
			X2: x2 / w,
			Y2: y2 / h,
		}

		// The table may have gained the name via a file load while
		// the selection was pending.
		if _, ok := r.domains[sel.name]; ok {
			sel.done <- fmt.Errorf("%w: %q", ErrDuplicateName, sel.name)
			return
		}
		r.domains[sel.name] = rect
		sel.done <- nil
	}
}

// altDownLocked: with an anchor set, only the anchor is discarded and
// the protocol stays armed; with no anchor, the whole selection is
// cancelled and the blocked caller resumes with ErrSelectionCancelled.
func (r *Registry) altDownLocked() {
	sel := r.sel

	if sel.state == awaitingSecondCorner {
		sel.state = awaitingFirstCorner
		sel.anchorX = 0
		sel.anchorY = 0
		return
	}

	r.sel = nil
	sel.done <- ErrSelectionCancelled
}
