package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/geom"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/logging"
)

type fakeDetector struct {
	faces []detector.Detection
	err   error
	calls int
}

func (d *fakeDetector) Detect(frame gocv.Mat) ([]detector.Detection, error) {
	d.calls++
	return d.faces, d.err
}

type fakeRegressor struct {
	landmarks landmark.Landmarks
	err       error
	calls     int
	cropSize  [2]int
}

func (r *fakeRegressor) Regress(crop gocv.Mat) (landmark.Landmarks, error) {
	r.calls++
	r.cropSize = [2]int{crop.Cols(), crop.Rows()}
	return r.landmarks, r.err
}

var faceBox = geom.Box{TopLeft: geom.Point{X: 10, Y: 10}, BottomRight: geom.Point{X: 50, Y: 50}}

func newFakes() (*fakeDetector, *fakeRegressor) {
	det := &fakeDetector{faces: []detector.Detection{{Box: faceBox, Score: 0.95}}}
	reg := &fakeRegressor{landmarks: landmark.Landmarks{
		Points: []geom.Point3{
			{X: 0.25, Y: 0.25, Z: 0.1},
			{X: 0.75, Y: 0.75, Z: -0.1},
			{X: 0.5, Y: 0.4, Z: 0},
		},
		Confidence: 0.97,
	}}
	return det, reg
}

func newTestPipeline(t *testing.T, cfg Config, det FaceDetector, reg MeshRegressor) *Pipeline {
	t.Helper()
	p, err := New(cfg, det, reg, logging.Discard())
	require.NoError(t, err)
	return p
}

func newFrame(t *testing.T) gocv.Mat {
	t.Helper()
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(120, 90, 60, 0), 200, 200, gocv.MatTypeCV32FC3)
	t.Cleanup(func() { frame.Close() })
	return frame
}

func predict(t *testing.T, p *Pipeline, frame gocv.Mat) *Prediction {
	t.Helper()
	pred, err := p.Predict(frame)
	require.NoError(t, err)
	if pred != nil {
		t.Cleanup(func() { pred.Mesh.Close() })
	}
	return pred
}

func TestPipeline_NoFaceKeepsNoROI(t *testing.T) {
	det, reg := newFakes()
	det.faces = nil
	p := newTestPipeline(t, DefaultConfig(), det, reg)
	frame := newFrame(t)

	pred := predict(t, p, frame)

	assert.Nil(t, pred)
	assert.False(t, p.HasROI())
	assert.Equal(t, ModeNoFace, p.LastMode())
	assert.Equal(t, 1, det.calls)
	assert.Equal(t, 0, reg.calls)
}

func TestPipeline_BoundingBoxComesFromLandmarks(t *testing.T) {
	det, reg := newFakes()
	p := newTestPipeline(t, DefaultConfig(), det, reg)
	frame := newFrame(t)

	pred := predict(t, p, frame)
	require.NotNil(t, pred)

	// ROI = square(faceBox) enlarged 1.5x = (0,0)-(60,60)
	expected := geom.Box{TopLeft: geom.Point{X: 15, Y: 15}, BottomRight: geom.Point{X: 45, Y: 45}}
	assert.InDelta(t, expected.TopLeft.X, pred.BoundingBox.TopLeft.X, 1e-4)
	assert.InDelta(t, expected.TopLeft.Y, pred.BoundingBox.TopLeft.Y, 1e-4)
	assert.InDelta(t, expected.BottomRight.X, pred.BoundingBox.BottomRight.X, 1e-4)
	assert.InDelta(t, expected.BottomRight.Y, pred.BoundingBox.BottomRight.Y, 1e-4)
	assert.NotEqual(t, faceBox, pred.BoundingBox)
	assert.Equal(t, float32(0.97), pred.Confidence)

	require.Equal(t, 3, pred.Mesh.Rows())
	require.Equal(t, 3, pred.Mesh.Cols())
	assert.InDelta(t, 15, pred.Mesh.GetFloatAt(0, 0), 1e-4)
	assert.InDelta(t, 6, pred.Mesh.GetFloatAt(0, 2), 1e-4)
	assert.InDelta(t, 30, pred.Mesh.GetFloatAt(2, 0), 1e-4)
	assert.InDelta(t, 24, pred.Mesh.GetFloatAt(2, 1), 1e-4)

	assert.Equal(t, [2]int{128, 128}, reg.cropSize)

	// Next ROI follows the landmarks, squared and padded
	roi, ok := p.ROI()
	require.True(t, ok)
	assert.InDelta(t, 7.5, roi.TopLeft.X, 1e-4)
	assert.InDelta(t, 52.5, roi.BottomRight.Y, 1e-4)
	assert.Equal(t, ModeDetect, p.LastMode())
}

func TestPipeline_DetectorSkippedWhileTracking(t *testing.T) {
	det, reg := newFakes()
	cfg := DefaultConfig()
	cfg.MaxContinuousChecks = 5
	p := newTestPipeline(t, cfg, det, reg)
	frame := newFrame(t)

	predict(t, p, frame)
	require.Equal(t, 1, det.calls)

	for i := 0; i < cfg.MaxContinuousChecks; i++ {
		predict(t, p, frame)
		assert.Equal(t, 1, det.calls, "tracked frame %d", i+1)
		assert.Equal(t, ModeTrack, p.LastMode())
	}
	assert.Equal(t, 0, p.ChecksLeft())

	// Countdown exhausted: the next frame must detect
	predict(t, p, frame)
	assert.Equal(t, 2, det.calls)
	assert.Equal(t, ModeDetect, p.LastMode())

	const frames = 30
	for i := 0; i < frames; i++ {
		predict(t, p, frame)
	}
	assert.LessOrEqual(t, det.calls, 2+frames/cfg.MaxContinuousChecks)
	assert.Equal(t, 2+cfg.MaxContinuousChecks+frames, reg.calls)
}

func TestPipeline_TracksStaleROIUntilCountdownExpires(t *testing.T) {
	det, reg := newFakes()
	cfg := DefaultConfig()
	cfg.MaxContinuousChecks = 3
	p := newTestPipeline(t, cfg, det, reg)
	frame := newFrame(t)

	predict(t, p, frame)

	// Face leaves the frame; tracking keeps going on the cached ROI
	det.faces = nil
	for i := 0; i < cfg.MaxContinuousChecks; i++ {
		assert.NotNil(t, predict(t, p, frame))
	}
	assert.Equal(t, 1, det.calls)

	assert.Nil(t, predict(t, p, frame))
	assert.Equal(t, 2, det.calls)
	assert.False(t, p.HasROI())
}

func TestPipeline_ZeroChecksDetectsEveryFrame(t *testing.T) {
	det, reg := newFakes()
	cfg := DefaultConfig()
	cfg.MaxContinuousChecks = 0
	p := newTestPipeline(t, cfg, det, reg)
	frame := newFrame(t)

	for i := 0; i < 4; i++ {
		predict(t, p, frame)
	}
	assert.Equal(t, 4, det.calls)
}

func TestPipeline_ClearROIs(t *testing.T) {
	det, reg := newFakes()
	p := newTestPipeline(t, DefaultConfig(), det, reg)
	frame := newFrame(t)

	assert.NotPanics(t, p.ClearROIs)
	assert.False(t, p.HasROI())
	p.ClearROIs()
	assert.False(t, p.HasROI())
	assert.Equal(t, 0, p.ChecksLeft())

	predict(t, p, frame)
	require.True(t, p.HasROI())

	p.ClearROIs()
	assert.False(t, p.HasROI())

	predict(t, p, frame)
	assert.Equal(t, 2, det.calls)
}

func TestPipeline_PicksHighestScore(t *testing.T) {
	det, reg := newFakes()
	det.faces = []detector.Detection{
		{Box: geom.Box{TopLeft: geom.Point{X: 100, Y: 100}, BottomRight: geom.Point{X: 120, Y: 120}}, Score: 0.8},
		{Box: faceBox, Score: 0.95},
	}
	p := newTestPipeline(t, DefaultConfig(), det, reg)

	pred := predict(t, p, newFrame(t))
	require.NotNil(t, pred)
	assert.InDelta(t, 15, pred.BoundingBox.TopLeft.X, 1e-4)
}

func TestPipeline_PropagatesErrors(t *testing.T) {
	frame := newFrame(t)
	boom := errors.New("malformed input tensor")

	det, reg := newFakes()
	det.err = boom
	p := newTestPipeline(t, DefaultConfig(), det, reg)
	_, err := p.Predict(frame)
	assert.ErrorIs(t, err, boom)
	assert.False(t, p.HasROI())

	det, reg = newFakes()
	reg.err = boom
	p = newTestPipeline(t, DefaultConfig(), det, reg)
	_, err = p.Predict(frame)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, det.calls)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = p.Predict(empty)
	assert.Error(t, err)
}

func TestPipeline_RejectsBadConfig(t *testing.T) {
	det, reg := newFakes()

	cfg := DefaultConfig()
	cfg.MeshWidth = 0
	_, err := New(cfg, det, reg, logging.Discard())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.MaxContinuousChecks = -1
	_, err = New(cfg, det, reg, logging.Discard())
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil, reg, logging.Discard())
	assert.Error(t, err)
}

func TestToImage_RoundTrip(t *testing.T) {
	roi := geom.Box{TopLeft: geom.Point{X: -12, Y: 30}, BottomRight: geom.Point{X: 88, Y: 130}}
	original := []geom.Point3{{X: 0, Y: 30}, {X: 37.5, Y: 80.25}, {X: 88, Y: 130}}

	local := make([]geom.Point3, len(original))
	for i, p := range original {
		lp := roi.ToLocal(geom.Point{X: p.X, Y: p.Y})
		local[i] = geom.Point3{X: lp.X, Y: lp.Y, Z: 0.5}
	}

	back := toImage(local, roi)
	for i := range original {
		assert.InDelta(t, original[i].X, back[i].X, 1e-4)
		assert.InDelta(t, original[i].Y, back[i].Y, 1e-4)
		assert.InDelta(t, 50, back[i].Z, 1e-4)
	}
}

func TestPipeline_RecordsTiming(t *testing.T) {
	det, reg := newFakes()
	p := newTestPipeline(t, DefaultConfig(), det, reg)

	predict(t, p, newFrame(t))
	timing := p.LastTiming()
	assert.Greater(t, timing.Total, time.Duration(0))
	assert.GreaterOrEqual(t, timing.Total, timing.Detection+timing.Regression)
}
