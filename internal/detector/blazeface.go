package detector

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/geom"
	"github.com/dudu/facemesh/internal/inference"
)

const (
	blazeFaceCoords    = 16 // box (4) + 6 keypoints (12)
	blazeFaceKeypoints = 6
	maxLogit           = 100
)

// BlazeFaceConfig holds detector parameters
type BlazeFaceConfig struct {
	InputSize      int
	ScoreThreshold float32
	IoUThreshold   float32
	Layout         inference.Layout
}

// DefaultBlazeFaceConfig matches the 128x128 front-camera model
func DefaultBlazeFaceConfig() BlazeFaceConfig {
	return BlazeFaceConfig{
		InputSize:      128,
		ScoreThreshold: 0.75,
		IoUThreshold:   0.3,
		Layout:         inference.LayoutNCHW,
	}
}

// BlazeFace implements the BlazeFace short-range face detector
type BlazeFace struct {
	model   inference.Model
	config  BlazeFaceConfig
	anchors []anchor
}

// NewBlazeFace wraps a loaded BlazeFace model
func NewBlazeFace(model inference.Model, config BlazeFaceConfig) (*BlazeFace, error) {
	if config.InputSize <= 0 {
		return nil, fmt.Errorf("invalid BlazeFace input size %d", config.InputSize)
	}
	return &BlazeFace{
		model:   model,
		config:  config,
		anchors: generateAnchors(config.InputSize, blazeFaceLayers),
	}, nil
}

// Detect finds faces in a float32 RGB frame. Boxes are in frame pixels.
func (b *BlazeFace) Detect(frame gocv.Mat) ([]Detection, error) {
	origWidth := float32(frame.Cols())
	origHeight := float32(frame.Rows())

	// Preprocess: stretch to input size, normalize to [-1,1]
	size := image.Pt(b.config.InputSize, b.config.InputSize)
	input, err := inference.FromImage(frame, size, 127.5, 1.0/127.5, b.config.Layout)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare detector input: %w", err)
	}

	outputs, err := b.model.Run(input)
	if err != nil {
		return nil, fmt.Errorf("detector inference failed: %w", err)
	}

	boxes, scores, err := b.splitOutputs(outputs)
	if err != nil {
		return nil, err
	}

	faces := b.decode(boxes, scores, origWidth, origHeight)
	return nms(faces, b.config.IoUThreshold), nil
}

// splitOutputs finds the regressor and classificator tensors by size
func (b *BlazeFace) splitOutputs(outputs []inference.Tensor) (boxes, scores []float32, err error) {
	n := len(b.anchors)
	for _, t := range outputs {
		switch len(t.Data) {
		case n * blazeFaceCoords:
			boxes = t.Data
		case n:
			scores = t.Data
		}
	}
	if boxes == nil || scores == nil {
		return nil, nil, fmt.Errorf("unexpected detector outputs for %d anchors", n)
	}
	return boxes, scores, nil
}

// decode converts anchor-relative regressions to frame-space detections
func (b *BlazeFace) decode(boxes, scores []float32, width, height float32) []Detection {
	var faces []Detection
	inSize := float32(b.config.InputSize)

	for i, a := range b.anchors {
		score := inference.Sigmoid(clampLogit(scores[i]))
		if score < b.config.ScoreThreshold {
			continue
		}

		raw := boxes[i*blazeFaceCoords : (i+1)*blazeFaceCoords]
		cx := raw[0]/inSize + a.X
		cy := raw[1]/inSize + a.Y
		w := raw[2] / inSize
		h := raw[3] / inSize

		box := geom.Box{
			TopLeft:     geom.Point{X: (cx - w/2) * width, Y: (cy - h/2) * height},
			BottomRight: geom.Point{X: (cx + w/2) * width, Y: (cy + h/2) * height},
		}
		if box.Validate() != nil {
			continue
		}

		keypoints := make([]geom.Point, blazeFaceKeypoints)
		for k := range keypoints {
			keypoints[k] = geom.Point{
				X: (raw[4+k*2]/inSize + a.X) * width,
				Y: (raw[5+k*2]/inSize + a.Y) * height,
			}
		}

		faces = append(faces, Detection{
			Box:       box.Clamp(width, height),
			Keypoints: keypoints,
			Score:     score,
		})
	}

	return faces
}

func clampLogit(x float32) float32 {
	if x > maxLogit {
		return maxLogit
	}
	if x < -maxLogit {
		return -maxLogit
	}
	return x
}
