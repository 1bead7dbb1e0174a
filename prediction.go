package facemesh

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ReturnMode selects how the mesh is handed back
type ReturnMode int

const (
	// Materialized copies the mesh into Prediction.Mesh and releases all
	// intermediate Mats before returning.
	Materialized ReturnMode = iota
	// Owned hands the N x 3 CV32F mesh Mat to the caller in
	// Prediction.MeshMat; the caller must Close the Prediction.
	Owned
)

// Prediction is one frame's estimate
type Prediction struct {
	FaceInViewConfidence float32
	Mesh                 []Point3 // Materialized mode
	BoundingBox          Box      // tight box around the mesh
	MeshMat              gocv.Mat // Owned mode

	owned bool
}

// Close releases the mesh Mat in Owned mode. It is a no-op otherwise and
// safe to call more than once.
func (p *Prediction) Close() error {
	if !p.owned {
		return nil
	}
	p.owned = false
	return p.MeshMat.Close()
}

// toPipelineFrame converts a caller frame to float32 RGB. release closes any
// Mat allocated here and never touches the caller's frame.
func toPipelineFrame(frame gocv.Mat) (gocv.Mat, func(), error) {
	noop := func() {}
	if frame.Empty() {
		return gocv.Mat{}, noop, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	var code gocv.ColorConversionCode
	switch frame.Type() {
	case gocv.MatTypeCV32FC3:
		return frame, noop, nil
	case gocv.MatTypeCV8UC3:
		code = gocv.ColorBGRToRGB
	case gocv.MatTypeCV8UC4:
		code = gocv.ColorBGRAToRGB
	default:
		return gocv.Mat{}, noop, fmt.Errorf("%w: unsupported mat type %v", ErrInvalidFrame, frame.Type())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(frame, &rgb, code)

	out := gocv.NewMat()
	rgb.ConvertTo(&out, gocv.MatTypeCV32FC3)

	return out, func() { out.Close() }, nil
}

// matToPoints copies an N x 3 CV32F Mat into points
func matToPoints(m gocv.Mat) []Point3 {
	points := make([]Point3, m.Rows())
	for i := range points {
		points[i] = Point3{
			X: m.GetFloatAt(i, 0),
			Y: m.GetFloatAt(i, 1),
			Z: m.GetFloatAt(i, 2),
		}
	}
	return points
}
