package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// Capture reads frames from a webcam or a video file at a bounded rate
type Capture struct {
	source  *gocv.VideoCapture
	name    string
	width   int
	height  int
	limiter *rate.Limiter
	mu      sync.Mutex
}

// Open opens a camera by device index ("0", "1") or a video file / stream URL.
// Frames are paced to at most fps per second; fps <= 0 disables pacing.
func Open(source string, fps int) (*Capture, error) {
	return OpenWithResolution(source, fps, 1280, 720)
}

// OpenWithResolution is Open with a requested camera resolution. The
// resolution is ignored for files.
func OpenWithResolution(source string, fps, width, height int) (*Capture, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	deviceID, convErr := strconv.Atoi(source)
	if convErr == nil {
		vc, err = gocv.OpenVideoCapture(deviceID)
	} else {
		vc, err = gocv.VideoCaptureFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", source, err)
	}

	if convErr == nil {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
		if fps > 0 {
			vc.Set(gocv.VideoCaptureFPS, float64(fps))
		}
	}

	// The device may not honor the requested resolution
	actualWidth := int(vc.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(vc.Get(gocv.VideoCaptureFrameHeight))

	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}

	return &Capture{
		source:  vc,
		name:    source,
		width:   actualWidth,
		height:  actualHeight,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Read waits for the next frame slot and captures into frame. It returns
// false when the source is exhausted or closed.
func (c *Capture) Read(ctx context.Context, frame *gocv.Mat) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == nil {
		return false, nil
	}
	return c.source.Read(frame), nil
}

// Name returns the source the capture was opened with
func (c *Capture) Name() string {
	return c.name
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the source
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		err := c.source.Close()
		c.source = nil
		return err
	}
	return nil
}
