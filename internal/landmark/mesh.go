// Package landmark wraps the face mesh regressor.
package landmark

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/geom"
	"github.com/dudu/facemesh/internal/inference"
)

// Landmarks is one regressor result in crop-local normalized coordinates:
// x and y in [0,1] of the patch, z divided by the patch width.
type Landmarks struct {
	Points     []geom.Point3
	Confidence float32
}

// Regressor estimates landmarks on a cropped face patch
type Regressor interface {
	Regress(crop gocv.Mat) (Landmarks, error)
}

// MeshConfig holds regressor parameters
type MeshConfig struct {
	InputWidth  int
	InputHeight int
	Layout      inference.Layout
	FlagLogits  bool // the presence output is a logit, not a probability
}

// DefaultMeshConfig returns the settings for a width x height mesh model
func DefaultMeshConfig(width, height int) MeshConfig {
	return MeshConfig{
		InputWidth:  width,
		InputHeight: height,
		Layout:      inference.LayoutNCHW,
		FlagLogits:  true,
	}
}

// Mesh runs the dense face mesh model
type Mesh struct {
	model  inference.Model
	config MeshConfig
}

// NewMesh wraps a loaded mesh model
func NewMesh(model inference.Model, config MeshConfig) (*Mesh, error) {
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid mesh input size %dx%d", config.InputWidth, config.InputHeight)
	}
	return &Mesh{model: model, config: config}, nil
}

// Regress runs the model on a float32 RGB crop. The crop is left untouched.
func (m *Mesh) Regress(crop gocv.Mat) (Landmarks, error) {
	w, h := m.config.InputWidth, m.config.InputHeight

	// Normalize to [0,1]
	input, err := inference.FromImage(crop, image.Pt(w, h), 0, 1.0/255, m.config.Layout)
	if err != nil {
		return Landmarks{}, fmt.Errorf("failed to prepare mesh input: %w", err)
	}

	outputs, err := m.model.Run(input)
	if err != nil {
		return Landmarks{}, fmt.Errorf("mesh inference failed: %w", err)
	}

	coords, flag, err := splitOutputs(outputs)
	if err != nil {
		return Landmarks{}, err
	}

	points := make([]geom.Point3, len(coords)/3)
	for i := range points {
		points[i] = geom.Point3{
			X: coords[i*3] / float32(w),
			Y: coords[i*3+1] / float32(h),
			Z: coords[i*3+2] / float32(w),
		}
	}

	confidence := flag
	if m.config.FlagLogits {
		confidence = inference.Sigmoid(flag)
	}

	return Landmarks{Points: points, Confidence: confidence}, nil
}

// splitOutputs picks the single-value presence flag and the xyz coordinates
func splitOutputs(outputs []inference.Tensor) (coords []float32, flag float32, err error) {
	var haveFlag bool
	for _, t := range outputs {
		switch {
		case len(t.Data) == 1:
			flag, haveFlag = t.Data[0], true
		case len(t.Data) > 1 && len(t.Data)%3 == 0:
			coords = t.Data
		}
	}
	if coords == nil || !haveFlag {
		return nil, 0, fmt.Errorf("unexpected mesh outputs: %d tensors", len(outputs))
	}
	return coords, flag, nil
}
