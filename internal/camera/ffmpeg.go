package camera

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/pkg/types"
)

var errDeviceClosed = errors.New("camera: device closed")

// FFmpegDevice captures frames by running ffmpeg against a V4L2
// device, an RTSP URL, or an HTTP stream and demuxing the resulting
// MJPEG pipe into individual JPEG frames.
type FFmpegDevice struct {
	source string
	width  int
	height int
	fps    int

	cmd    *exec.Cmd
	frames chan *types.Frame
	stopCh chan struct{}
	seq    atomic.Uint64

	closeOnce sync.Once
}

// NewFFmpegDevice creates a device for the given source. The source
// may be a V4L2 device path (/dev/video0), an rtsp:// URL, or an
// http(s):// stream URL.
func NewFFmpegDevice(source string, width, height, fps int) *FFmpegDevice {
	return &FFmpegDevice{
		source: source,
		width:  width,
		height: height,
		fps:    fps,
		frames: make(chan *types.Frame, 1),
		stopCh: make(chan struct{}),
	}
}

func (d *FFmpegDevice) buildArgs() []string {
	if strings.HasPrefix(d.source, "rtsp://") {
		return []string{
			"-rtsp_transport", "tcp",
			"-i", d.source,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", d.fps),
			"-q:v", "5",
			"-",
		}
	}
	if strings.HasPrefix(d.source, "http://") || strings.HasPrefix(d.source, "https://") {
		return []string{
			"-i", d.source,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", d.fps),
			"-q:v", "5",
			"-",
		}
	}
	// V4L2 device (USB camera)
	return []string{
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", d.width, d.height),
		"-framerate", fmt.Sprintf("%d", d.fps),
		"-i", d.source,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	}
}

// Open starts the ffmpeg process and the demux loop.
func (d *FFmpegDevice) Open() error {
	d.cmd = exec.Command("ffmpeg", d.buildArgs()...)

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("camera: stdout pipe: %w", err)
	}
	stderr, err := d.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("camera: stderr pipe: %w", err)
	}

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("camera: start ffmpeg for %s: %w", d.source, err)
	}

	// Drain stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	go d.demux(stdout)

	logger.Info("camera", "ffmpeg capture started for %s (%dx%d @ %d fps)",
		d.source, d.width, d.height, d.fps)
	return nil
}

func (d *FFmpegDevice) demux(stdout io.Reader) {
	defer close(d.frames)

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		n, err := stdout.Read(chunk)
		if err != nil {
			select {
			case <-d.stopCh:
			default:
				logger.Error("camera", "ffmpeg pipe read: %v", err)
			}
			return
		}

		buffer = append(buffer, chunk[:n]...)

		for {
			data := extractJPEG(&buffer)
			if data == nil {
				break
			}
			frame := &types.Frame{
				Data:      data,
				Width:     d.width,
				Height:    d.height,
				Timestamp: time.Now(),
				Seq:       d.seq.Add(1),
			}
			select {
			case d.frames <- frame:
			case <-d.stopCh:
				return
			default:
				// Reader is behind; replace the stale frame.
				select {
				case <-d.frames:
				default:
				}
				select {
				case d.frames <- frame:
				default:
				}
			}
		}
	}
}

// ReadFrame returns the next demuxed frame.
func (d *FFmpegDevice) ReadFrame() (*types.Frame, error) {
	frame, ok := <-d.frames
	if !ok {
		return nil, errDeviceClosed
	}
	return frame, nil
}

// Close stops ffmpeg and unblocks pending ReadFrame calls.
func (d *FFmpegDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopCh)
		if d.cmd != nil && d.cmd.Process != nil {
			d.cmd.Process.Kill()
			d.cmd.Wait()
		}
	})
	return nil
}

// extractJPEG pulls one complete JPEG (FFD8..FFD9) out of buffer,
// consuming it, or returns nil if no complete frame is buffered yet.
func extractJPEG(buffer *[]byte) []byte {
	buf := *buffer
	if len(buf) < 4 {
		return nil
	}

	start := -1
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	end := -1
	for i := start + 2; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil
	}

	frame := make([]byte, end-start)
	copy(frame, buf[start:end])
	*buffer = buf[end:]
	return frame
}
