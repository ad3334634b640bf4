package inference

import (
	"context"
	"image"
	"image/color"
)

// LuminanceDetector is a dependency-free detector for bench setups
// without a detection service: it thresholds the region on luminance
// and reports the bounding box of each dark connected component.
// Components smaller than minArea pixels are ignored.
type LuminanceDetector struct {
	threshold uint8
	minArea   int
	label     string
}

// NewLuminanceDetector creates a detector that reports components
// darker than threshold under the given class label.
func NewLuminanceDetector(threshold uint8, minArea int, label string) *LuminanceDetector {
	if minArea <= 0 {
		minArea = 25
	}
	if label == "" {
		label = "person"
	}
	return &LuminanceDetector{
		threshold: threshold,
		minArea:   minArea,
		label:     label,
	}
}

func (d *LuminanceDetector) dark(c color.Color) bool {
	gray := color.GrayModel.Convert(c).(color.Gray)
	return gray.Y < d.threshold
}

// Detect scans the region for dark connected components.
func (d *LuminanceDetector) Detect(ctx context.Context, img image.Image) ([]RawDetection, error) {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w == 0 || h == 0 {
		return nil, nil
	}

	visited := make([]bool, w*h)
	idx := func(x, y int) int { return (y-bounds.Min.Y)*w + (x - bounds.Min.X) }

	var out []RawDetection
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if visited[idx(x, y)] || !d.dark(img.At(x, y)) {
				visited[idx(x, y)] = true
				continue
			}

			// Flood the component, tracking its extent.
			minX, minY, maxX, maxY := x, y, x, y
			area := 0
			queue := []image.Point{{X: x, Y: y}}
			visited[idx(x, y)] = true

			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				area++

				if p.X < minX {
					minX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y > maxY {
					maxY = p.Y
				}

				for _, n := range []image.Point{
					{X: p.X - 1, Y: p.Y}, {X: p.X + 1, Y: p.Y},
					{X: p.X, Y: p.Y - 1}, {X: p.X, Y: p.Y + 1},
				} {
					if n.X < bounds.Min.X || n.X >= bounds.Max.X ||
						n.Y < bounds.Min.Y || n.Y >= bounds.Max.Y {
						continue
					}
					if visited[idx(n.X, n.Y)] {
						continue
					}
					visited[idx(n.X, n.Y)] = true
					if d.dark(img.At(n.X, n.Y)) {
						queue = append(queue, n)
					}
				}
			}

			if area < d.minArea {
				continue
			}
			out = append(out, RawDetection{
				Class:      d.label,
				Confidence: 1.0,
				X1:         minX - bounds.Min.X,
				Y1:         minY - bounds.Min.Y,
				X2:         maxX - bounds.Min.X + 1,
				Y2:         maxY - bounds.Min.Y + 1,
			})
		}
	}
	return out, nil
}

var _ Detector = (*LuminanceDetector)(nil)
