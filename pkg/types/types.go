package types

import "time"

// Frame represents one acquired camera image with metadata
type Frame struct {
	Data      []byte    // JPEG-encoded pixel data
	Width     int       // Frame width in pixels
	Height    int       // Frame height in pixels
	Timestamp time.Time // Acquisition timestamp
	Seq       uint64    // Sequential frame number
}

// Clone returns a deep copy of the frame. Consumers receive clones so the
// acquisition loop can keep overwriting its own buffer.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:      data,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}
}

// Rect is an axis-aligned rectangle in normalized [0,1] frame coordinates.
type Rect struct {
	X1 float64 `json:"x1" yaml:"x1"`
	Y1 float64 `json:"y1" yaml:"y1"`
	X2 float64 `json:"x2" yaml:"x2"`
	Y2 float64 `json:"y2" yaml:"y2"`
}

// Pixels converts the rectangle to pixel coordinates against the given
// frame dimensions. No clipping is applied.
func (r Rect) Pixels(width, height int) (x1, y1, x2, y2 int) {
	return int(r.X1 * float64(width)),
		int(r.Y1 * float64(height)),
		int(r.X2 * float64(width)),
		int(r.Y2 * float64(height))
}

// Domain is a named normalized rectangle scoping detection and counting.
type Domain struct {
	Name string `json:"name"`
	Rect Rect   `json:"rect"`
}

// Detection is one instance of the tracked class found in a frame.
// Rect is normalized to the full frame even when the detection came from a
// domain crop.
type Detection struct {
	Rect       Rect    `json:"rect"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class_name"`
	Domain     string  `json:"domain_name,omitempty"` // empty when untagged
}

// InferenceResult is the output of one orchestration cycle. It is immutable
// after publication.
type InferenceResult struct {
	Detections   []Detection    `json:"detections"`
	DomainCounts map[string]int `json:"domain_counts"`
	Timestamp    time.Time      `json:"timestamp"`
	FrameSeq     uint64         `json:"frame_seq"`
}

// PointerKind classifies a pointer event.
type PointerKind string

const (
	PointerDown    PointerKind = "down"
	PointerUp      PointerKind = "up"
	PointerMove    PointerKind = "move"
	PointerAltDown PointerKind = "alt-down"
)

// PointerEvent is a pointer interaction in frame-pixel coordinates.
// FrameWidth/FrameHeight carry the dimensions of the frame the coordinates
// refer to; they are required to normalize a completed selection.
type PointerEvent struct {
	Kind        PointerKind `json:"kind"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	FrameWidth  int         `json:"frame_width,omitempty"`
	FrameHeight int         `json:"frame_height,omitempty"`
}
