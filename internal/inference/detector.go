package inference

import (
	"context"
	"image"
)

// RawDetection is a single detected object in region-local pixel
// coordinates. The region is whatever image was handed to Detect;
// the orchestrator translates boxes back to frame space.
type RawDetection struct {
	Class      string
	Confidence float64
	X1, Y1     int
	X2, Y2     int
}

// Detector finds objects in an image region.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]RawDetection, error)
}
