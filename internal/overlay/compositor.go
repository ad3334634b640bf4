package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/aru-oka/occusight/vision-server/internal/domains"
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// Compositor renders the annotated view: domain rectangles with live
// counts, detection boxes colored by owning domain, and the two-click
// selection preview. It also remembers the dimensions of the last
// rendered frame, which the selection protocol needs to normalize
// pixel coordinates.
type Compositor struct {
	registry *domains.Registry

	mu       sync.Mutex
	frameW   int
	frameH   int
	pointerX float64
	pointerY float64
}

// NewCompositor creates a compositor bound to the domain registry.
func NewCompositor(registry *domains.Registry) *Compositor {
	return &Compositor{registry: registry}
}

// FrameSize returns the dimensions of the last rendered frame, or
// zeros before the first render.
func (c *Compositor) FrameSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameW, c.frameH
}

// HandlePointer forwards the event to the selection protocol first,
// then updates the local preview position. Events without frame
// dimensions are stamped with the last rendered size.
func (c *Compositor) HandlePointer(ev types.PointerEvent) {
	if ev.FrameWidth <= 0 || ev.FrameHeight <= 0 {
		ev.FrameWidth, ev.FrameHeight = c.FrameSize()
	}

	c.registry.HandlePointer(ev)

	if c.registry.Selection().Active {
		c.mu.Lock()
		c.pointerX = ev.X
		c.pointerY = ev.Y
		c.mu.Unlock()
	}
}

// Render produces an annotated JPEG copy of the frame. result may be
// nil before the first detection cycle.
func (c *Compositor) Render(frame *types.Frame, result *types.InferenceResult) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("overlay: decode frame %d: %w", frame.Seq, err)
	}

	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	c.mu.Lock()
	c.frameW = w
	c.frameH = h
	pointerX := c.pointerX
	pointerY := c.pointerY
	c.mu.Unlock()

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min, draw.Src)

	table := c.registry.List()
	sel := c.registry.Selection()

	domainIndex := make(map[string]int, len(table))
	for i, dom := range table {
		domainIndex[dom.Name] = i
	}

	for i, dom := range table {
		col := domainColor(i)
		if sel.Active {
			col = desaturate(col)
		}

		x1, y1, x2, y2 := dom.Rect.Pixels(w, h)
		x1 = clamp(x1, 0, w-1)
		y1 = clamp(y1, 0, h-1)
		x2 = clamp(x2, 0, w-1)
		y2 = clamp(y2, 0, h-1)
		drawRect(canvas, x1, y1, x2, y2, col, 2)

		label := dom.Name
		if result != nil {
			if count, ok := result.DomainCounts[dom.Name]; ok {
				label = fmt.Sprintf("%s (%d)", dom.Name, count)
			}
		}
		drawLabel(canvas, x1+3, y1+13, label)
	}

	if result != nil {
		for _, det := range result.Detections {
			col := detectionColor
			if idx, ok := domainIndex[det.Domain]; ok && det.Domain != "" {
				col = domainColor(idx)
				if sel.Active {
					col = desaturate(col)
				}
			}
			x1 := clamp(int(det.Rect.X1*float64(w)), 0, w-1)
			y1 := clamp(int(det.Rect.Y1*float64(h)), 0, h-1)
			x2 := clamp(int(det.Rect.X2*float64(w)), 0, w-1)
			y2 := clamp(int(det.Rect.Y2*float64(h)), 0, h-1)
			drawRect(canvas, x1, y1, x2, y2, col, 1)
		}
	}

	if sel.Active {
		px := clamp(int(pointerX), 0, w-1)
		py := clamp(int(pointerY), 0, h-1)
		if sel.HasAnchor {
			ax := clamp(int(sel.AnchorX), 0, w-1)
			ay := clamp(int(sel.AnchorY), 0, h-1)
			drawRect(canvas, minInt(ax, px), minInt(ay, py), maxInt(ax, px), maxInt(ay, py), previewColor, 1)
		} else {
			drawCrosshair(canvas, px, py, previewColor)
		}
		drawLabel(canvas, 5, h-6, fmt.Sprintf("defining %q", sel.Name))
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, canvas, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("overlay: encode frame %d: %w", frame.Seq, err)
	}
	return out.Bytes(), nil
}

func drawRect(img *image.RGBA, x1, y1, x2, y2 int, col color.RGBA, thickness int) {
	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			img.SetRGBA(x, y1+t, col)
			img.SetRGBA(x, y2-t, col)
		}
		for y := y1; y <= y2; y++ {
			img.SetRGBA(x1+t, y, col)
			img.SetRGBA(x2-t, y, col)
		}
	}
}

func drawCrosshair(img *image.RGBA, x, y int, col color.RGBA) {
	const arm = 8
	bounds := img.Bounds()
	for d := -arm; d <= arm; d++ {
		if x+d >= bounds.Min.X && x+d < bounds.Max.X {
			img.SetRGBA(x+d, y, col)
		}
		if y+d >= bounds.Min.Y && y+d < bounds.Max.Y {
			img.SetRGBA(x, y+d, col)
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
