package camera

import (
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

// Device supplies JPEG-encoded frames from a video source.
// ReadFrame blocks until the next frame is available and returns
// a frame the caller owns.
type Device interface {
	// Open prepares the device for capture. It must be called
	// before the first ReadFrame.
	Open() error

	// ReadFrame blocks until a frame is available. It returns an
	// error when the device has been closed or the underlying
	// source has failed.
	ReadFrame() (*types.Frame, error)

	// Close releases the device. ReadFrame calls in flight return
	// an error after Close.
	Close() error
}
