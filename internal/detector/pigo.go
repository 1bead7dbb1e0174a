package detector

import (
	"fmt"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/geom"
)

// PigoConfig holds cascade detection parameters
type PigoConfig struct {
	MinSize          int
	MaxSize          int
	ShiftFactor      float64
	ScaleFactor      float64
	IoUThreshold     float64
	QualityThreshold float32
	Angle            float64 // 0.0 is upright, 1.0 a full turn
}

// DefaultPigoConfig returns parameters that work for webcam frames
func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		MinSize:          40,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// Pigo detects faces with the pigo pixel-intensity cascade. It needs no
// neural network, only the unpacked cascade file.
type Pigo struct {
	classifier *pigo.Pigo
	config     PigoConfig
}

// NewPigo unpacks a facefinder cascade
func NewPigo(cascade []byte, config PigoConfig) (*Pigo, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	return &Pigo{classifier: classifier, config: config}, nil
}

// Detect finds faces in a float32 RGB frame
func (p *Pigo) Detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorRGBToGray)

	gray8 := gocv.NewMat()
	defer gray8.Close()
	gray.ConvertTo(&gray8, gocv.MatTypeCV8U)

	rows, cols := gray8.Rows(), gray8.Cols()
	params := pigo.CascadeParams{
		MinSize:     p.config.MinSize,
		MaxSize:     min(p.config.MaxSize, max(rows, cols)),
		ShiftFactor: p.config.ShiftFactor,
		ScaleFactor: p.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray8.ToBytes(),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, p.config.Angle)
	dets = p.classifier.ClusterDetections(dets, p.config.IoUThreshold)

	faces := fromPigo(dets, p.config.QualityThreshold)
	return nms(faces, float32(p.config.IoUThreshold)), nil
}

// fromPigo converts (row, col, scale, quality) quadruplets to detections.
// Scale is the side of the square detection window.
func fromPigo(dets []pigo.Detection, qualityThreshold float32) []Detection {
	var faces []Detection
	for _, d := range dets {
		if d.Q < qualityThreshold {
			continue
		}
		half := float32(d.Scale) / 2
		faces = append(faces, Detection{
			Box: geom.Box{
				TopLeft:     geom.Point{X: float32(d.Col) - half, Y: float32(d.Row) - half},
				BottomRight: geom.Point{X: float32(d.Col) + half, Y: float32(d.Row) + half},
			},
			Score: qualityScore(d.Q),
		})
	}
	return faces
}

// qualityScore maps pigo's unbounded quality into [0,1]
func qualityScore(q float32) float32 {
	s := q / 100
	if s > 1 {
		return 1
	}
	if s < 0 {
		return 0
	}
	return s
}
