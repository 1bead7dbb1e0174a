package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/geom"
)

// Config holds pipeline configuration
type Config struct {
	MeshWidth           int
	MeshHeight          int
	MaxContinuousChecks int     // tracked frames allowed between detections
	BoxEnlarge          float32 // padding applied to detector and landmark boxes
}

// DefaultConfig returns 128x128 crops, 5 tracked frames, 1.5x padding
func DefaultConfig() Config {
	return Config{
		MeshWidth:           128,
		MeshHeight:          128,
		MaxContinuousChecks: 5,
		BoxEnlarge:          1.5,
	}
}

// Timing holds performance timing information
type Timing struct {
	Detection  time.Duration
	Crop       time.Duration
	Regression time.Duration
	Total      time.Duration
}

// Prediction is one frame's result. Mesh is an N x 3 CV32F Mat in image
// coordinates owned by the caller.
type Prediction struct {
	Confidence  float32
	Mesh        gocv.Mat
	BoundingBox geom.Box
}

// Pipeline tracks one face across frames. It is not safe for concurrent
// use; give each video stream its own Pipeline.
type Pipeline struct {
	config    Config
	detector  FaceDetector
	regressor MeshRegressor
	log       logrus.FieldLogger

	roi        *geom.Box
	checksLeft int

	lastMode   Mode
	lastTiming Timing
}

// New creates a tracking pipeline
func New(config Config, det FaceDetector, reg MeshRegressor, log logrus.FieldLogger) (*Pipeline, error) {
	if config.MeshWidth <= 0 || config.MeshHeight <= 0 {
		return nil, fmt.Errorf("invalid mesh size %dx%d", config.MeshWidth, config.MeshHeight)
	}
	if config.MaxContinuousChecks < 0 {
		return nil, fmt.Errorf("invalid max continuous checks %d", config.MaxContinuousChecks)
	}
	if config.BoxEnlarge <= 0 {
		return nil, fmt.Errorf("invalid box enlarge factor %v", config.BoxEnlarge)
	}
	if det == nil || reg == nil {
		return nil, fmt.Errorf("pipeline needs a detector and a regressor")
	}

	return &Pipeline{
		config:    config,
		detector:  det,
		regressor: reg,
		log:       log,
		lastMode:  ModeIdle,
	}, nil
}

// Predict runs one frame through the pipeline. frame must be float32 RGB.
// A nil prediction with a nil error means no face is in view.
func (p *Pipeline) Predict(frame gocv.Mat) (*Prediction, error) {
	totalStart := time.Now()
	var timing Timing
	defer func() {
		timing.Total = time.Since(totalStart)
		p.lastTiming = timing
	}()

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	roi, mode, err := p.activeROI(frame, &timing)
	if err != nil {
		return nil, err
	}
	p.lastMode = mode
	if roi == nil {
		return nil, nil
	}

	// Crop and regress
	cropStart := time.Now()
	crop, err := roi.CutFromAndResize(frame, p.config.MeshWidth, p.config.MeshHeight)
	timing.Crop = time.Since(cropStart)
	if err != nil {
		return nil, fmt.Errorf("crop failed: %w", err)
	}
	defer crop.Close()

	regressStart := time.Now()
	lm, err := p.regressor.Regress(crop)
	timing.Regression = time.Since(regressStart)
	if err != nil {
		return nil, fmt.Errorf("regression failed: %w", err)
	}

	// Back to image coordinates
	points := toImage(lm.Points, *roi)
	box, err := geom.FromPoints(points)
	if err != nil {
		return nil, fmt.Errorf("landmark box: %w", err)
	}

	next := box.Square().Enlarge(p.config.BoxEnlarge)
	p.roi = &next

	p.log.WithFields(logrus.Fields{
		"mode":        mode,
		"confidence":  lm.Confidence,
		"checks_left": p.checksLeft,
	}).Debug("frame processed")

	return &Prediction{
		Confidence:  lm.Confidence,
		Mesh:        pointsToMat(points),
		BoundingBox: box,
	}, nil
}

// activeROI picks the region for this frame, running detection if the
// pipeline has no ROI or the tracking budget is spent.
func (p *Pipeline) activeROI(frame gocv.Mat, timing *Timing) (*geom.Box, Mode, error) {
	if p.roi != nil && p.checksLeft > 0 {
		p.checksLeft--
		return p.roi, ModeTrack, nil
	}

	detectStart := time.Now()
	faces, err := p.detector.Detect(frame)
	timing.Detection = time.Since(detectStart)
	if err != nil {
		return nil, "", fmt.Errorf("detection failed: %w", err)
	}

	best, ok := detector.Best(faces)
	if !ok {
		if p.roi != nil {
			p.log.Debug("re-detection found no face, dropping ROI")
		}
		p.roi = nil
		p.checksLeft = 0
		return nil, ModeNoFace, nil
	}

	roi := best.Box.Square().Enlarge(p.config.BoxEnlarge)
	p.roi = &roi
	p.checksLeft = p.config.MaxContinuousChecks

	p.log.WithFields(logrus.Fields{
		"score":      best.Score,
		"candidates": len(faces),
	}).Debug("face detected")

	return p.roi, ModeDetect, nil
}

// ClearROIs forces full detection on the next frame. Safe to call repeatedly.
func (p *Pipeline) ClearROIs() {
	if p.roi != nil {
		p.log.Debug("ROI cleared")
	}
	p.roi = nil
	p.checksLeft = 0
}

// HasROI reports whether a cached region is available for tracking
func (p *Pipeline) HasROI() bool {
	return p.roi != nil
}

// ROI returns the cached region, if any
func (p *Pipeline) ROI() (geom.Box, bool) {
	if p.roi == nil {
		return geom.Box{}, false
	}
	return *p.roi, true
}

// ChecksLeft returns how many more frames may be tracked before re-detection
func (p *Pipeline) ChecksLeft() int {
	return p.checksLeft
}

// LastMode returns how the last frame located the face
func (p *Pipeline) LastMode() Mode {
	return p.lastMode
}

// LastTiming returns timing from last Predict call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// toImage maps crop-local landmarks into image coordinates; z follows the
// horizontal scale of the ROI.
func toImage(local []geom.Point3, roi geom.Box) []geom.Point3 {
	out := make([]geom.Point3, len(local))
	for i, lp := range local {
		ip := roi.FromLocal(geom.Point{X: lp.X, Y: lp.Y})
		out[i] = geom.Point3{X: ip.X, Y: ip.Y, Z: lp.Z * roi.Width()}
	}
	return out
}

func pointsToMat(points []geom.Point3) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 3, gocv.MatTypeCV32F)
	for i, pt := range points {
		m.SetFloatAt(i, 0, pt.X)
		m.SetFloatAt(i, 1, pt.Y)
		m.SetFloatAt(i, 2, pt.Z)
	}
	return m
}
