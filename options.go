package facemesh

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facemesh/internal/inference"
)

// DetectorKind selects the face detector backend
type DetectorKind string

const (
	DetectorBlazeFace DetectorKind = "blazeface"
	DetectorPigo      DetectorKind = "pigo"
)

// Layout is the tensor channel order a model expects
type Layout = inference.Layout

const (
	LayoutNCHW = inference.LayoutNCHW
	LayoutNHWC = inference.LayoutNHWC
)

// PigoCascadeURL is the upstream pigo face cascade
const PigoCascadeURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"

// Options configures Load. Model sources accept http(s) URLs, s3://bucket/key
// locations and local paths.
type Options struct {
	MeshWidth           int     `validate:"gt=0"`
	MeshHeight          int     `validate:"gt=0"`
	MaxContinuousChecks int     `validate:"gte=0"`
	DetectionConfidence float32 `validate:"gte=0,lte=1"`
	BoxEnlarge          float32 `validate:"gt=0"`

	Detector          DetectorKind `validate:"oneof=blazeface pigo"`
	DetectorModel     string       `validate:"required"` // ONNX model, or pigo cascade
	DetectorInputSize int          `validate:"gt=0"`
	DetectorLayout    Layout       `validate:"oneof=nchw nhwc"`
	ScoreThreshold    float32      `validate:"gte=0,lte=1"`
	IoUThreshold      float32      `validate:"gte=0,lte=1"`

	MeshModel      string `validate:"required"`
	MeshLayout     Layout `validate:"oneof=nchw nhwc"`
	MeshFlagLogits bool

	LibraryPath  string // onnxruntime shared library
	CoreML       bool
	FetchTimeout time.Duration `validate:"gte=0"`
	S3Region     string
	S3Anonymous  bool

	Logger logrus.FieldLogger `validate:"-"`
}

// DefaultOptions returns 128x128 mesh crops, 5 tracked frames between
// detections and a 0.9 confidence gate. Model sources must still be set.
func DefaultOptions() Options {
	return Options{
		MeshWidth:           128,
		MeshHeight:          128,
		MaxContinuousChecks: 5,
		DetectionConfidence: 0.9,
		BoxEnlarge:          1.5,

		Detector:          DetectorBlazeFace,
		DetectorInputSize: 128,
		DetectorLayout:    LayoutNCHW,
		ScoreThreshold:    0.75,
		IoUThreshold:      0.3,

		MeshLayout:     LayoutNCHW,
		MeshFlagLogits: true,

		FetchTimeout: 60 * time.Second,
		S3Region:     "us-east-1",
		S3Anonymous:  true,
	}
}

var validate = validator.New()

func (o Options) validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("facemesh: invalid options: %w", err)
	}
	return nil
}
