package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// PatternDevice synthesizes frames without camera hardware: a light
// background with a dark block orbiting the frame. The block is dark
// enough to register as a detection with the luminance detector, so
// the full pipeline can be exercised end to end.
type PatternDevice struct {
	width  int
	height int
	fps    int

	stopCh    chan struct{}
	seq       atomic.Uint64
	step      int
	closeOnce sync.Once
}

// NewPatternDevice creates a synthetic device at the given size and rate.
func NewPatternDevice(width, height, fps int) *PatternDevice {
	if fps <= 0 {
		fps = 10
	}
	return &PatternDevice{
		width:  width,
		height: height,
		fps:    fps,
		stopCh: make(chan struct{}),
	}
}

// Open is a no-op for the synthetic device.
func (d *PatternDevice) Open() error {
	return nil
}

// ReadFrame synthesizes the next frame, pacing to the configured rate.
func (d *PatternDevice) ReadFrame() (*types.Frame, error) {
	select {
	case <-d.stopCh:
		return nil, errDeviceClosed
	case <-time.After(time.Second / time.Duration(d.fps)):
	}

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{220, 220, 220, 255}}, image.Point{}, draw.Src)

	// Block traverses the frame horizontally and wraps.
	blockW := d.width / 8
	blockH := d.height / 4
	x := (d.step * 4) % (d.width - blockW)
	y := d.height/2 - blockH/2
	d.step++

	block := image.Rect(x, y, x+blockW, y+blockH)
	draw.Draw(img, block, &image.Uniform{color.RGBA{30, 30, 30, 255}}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}

	return &types.Frame{
		Data:      buf.Bytes(),
		Width:     d.width,
		Height:    d.height,
		Timestamp: time.Now(),
		Seq:       d.seq.Add(1),
	}, nil
}

// Close stops the device.
func (d *PatternDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopCh)
	})
	return nil
}
