// Package facemesh estimates a dense 3D face mesh from video frames. A face
// detector locates the face, a mesh regressor places the landmarks, and the
// region derived from each mesh is reused on following frames so detection
// only runs when tracking is lost or its budget is spent.
//
// A FaceMesh tracks one stream and is not safe for concurrent Estimate calls;
// create one per stream.
package facemesh

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/geom"
	"github.com/dudu/facemesh/internal/inference"
	"github.com/dudu/facemesh/internal/landmark"
	"github.com/dudu/facemesh/internal/logging"
	"github.com/dudu/facemesh/internal/modelsrc"
	"github.com/dudu/facemesh/internal/pipeline"
)

// Geometry types shared with callers
type (
	Point  = geom.Point
	Point3 = geom.Point3
	Box    = geom.Box
)

// Timing holds per-stage durations of the last Estimate call
type Timing = pipeline.Timing

// FaceMesh owns the loaded models and the tracking state of one stream
type FaceMesh struct {
	id  string
	log logrus.FieldLogger

	detectionConfidence float32

	backend    backend
	newBackend func(Options, logrus.FieldLogger) backend
	models     []inference.Model
	pipeline   *pipeline.Pipeline
}

// New returns an unloaded FaceMesh; call Load before Estimate
func New() *FaceMesh {
	return &FaceMesh{
		id:  uuid.NewString(),
		log: logging.Default(),
		newBackend: func(opts Options, log logrus.FieldLogger) backend {
			return newORTBackend(opts, log)
		},
	}
}

// Load creates a FaceMesh and loads its models
func Load(ctx context.Context, opts Options) (*FaceMesh, error) {
	f := New()
	if err := f.Load(ctx, opts); err != nil {
		return nil, err
	}
	return f, nil
}

// Load fetches both models in parallel and builds the tracking pipeline.
// Any previously loaded models are released first. On failure the FaceMesh
// is left unloaded and Load may be retried.
func (f *FaceMesh) Load(ctx context.Context, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if opts.Logger != nil {
		f.log = opts.Logger
	}
	f.log = f.log.WithField("session_id", f.id)

	fetcher := modelsrc.New(modelsrc.Config{
		Timeout:     opts.FetchTimeout,
		S3Region:    opts.S3Region,
		S3Anonymous: opts.S3Anonymous,
	}, f.log)

	var detectorData, meshData []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := fetcher.Fetch(gctx, opts.DetectorModel)
		if err != nil {
			return &ModelLoadError{Model: "detector", Source: opts.DetectorModel, Err: err}
		}
		detectorData = data
		return nil
	})
	g.Go(func() error {
		data, err := fetcher.Fetch(gctx, opts.MeshModel)
		if err != nil {
			return &ModelLoadError{Model: "mesh", Source: opts.MeshModel, Err: err}
		}
		meshData = data
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := f.build(opts, detectorData, meshData); err != nil {
		if cerr := f.Close(); cerr != nil {
			f.log.WithField("error", cerr).Warn("cleanup after failed load")
		}
		return err
	}

	f.detectionConfidence = opts.DetectionConfidence
	f.log.WithFields(logrus.Fields{
		"detector":              opts.Detector,
		"mesh_size":             fmt.Sprintf("%dx%d", opts.MeshWidth, opts.MeshHeight),
		"max_continuous_checks": opts.MaxContinuousChecks,
		"detection_confidence":  opts.DetectionConfidence,
	}).Info("models loaded")

	return nil
}

// build creates sessions, adapters and the pipeline from fetched bytes
func (f *FaceMesh) build(opts Options, detectorData, meshData []byte) error {
	be := f.newBackend(opts, f.log)
	if err := be.Open(); err != nil {
		return &ModelLoadError{Model: "runtime", Err: err}
	}
	f.backend = be

	var det pipeline.FaceDetector
	switch opts.Detector {
	case DetectorPigo:
		cfg := detector.DefaultPigoConfig()
		p, err := detector.NewPigo(detectorData, cfg)
		if err != nil {
			return &ModelLoadError{Model: "detector", Source: opts.DetectorModel, Err: err}
		}
		det = p
	default:
		model, err := be.NewModel("detector", detectorData)
		if err != nil {
			return &ModelLoadError{Model: "detector", Source: opts.DetectorModel, Err: err}
		}
		f.models = append(f.models, model)

		cfg := detector.DefaultBlazeFaceConfig()
		cfg.InputSize = opts.DetectorInputSize
		cfg.ScoreThreshold = opts.ScoreThreshold
		cfg.IoUThreshold = opts.IoUThreshold
		cfg.Layout = opts.DetectorLayout
		bf, err := detector.NewBlazeFace(model, cfg)
		if err != nil {
			return &ModelLoadError{Model: "detector", Source: opts.DetectorModel, Err: err}
		}
		det = bf
	}

	model, err := be.NewModel("mesh", meshData)
	if err != nil {
		return &ModelLoadError{Model: "mesh", Source: opts.MeshModel, Err: err}
	}
	f.models = append(f.models, model)

	meshCfg := landmark.DefaultMeshConfig(opts.MeshWidth, opts.MeshHeight)
	meshCfg.Layout = opts.MeshLayout
	meshCfg.FlagLogits = opts.MeshFlagLogits
	mesh, err := landmark.NewMesh(model, meshCfg)
	if err != nil {
		return &ModelLoadError{Model: "mesh", Source: opts.MeshModel, Err: err}
	}

	p, err := pipeline.New(pipeline.Config{
		MeshWidth:           opts.MeshWidth,
		MeshHeight:          opts.MeshHeight,
		MaxContinuousChecks: opts.MaxContinuousChecks,
		BoxEnlarge:          opts.BoxEnlarge,
	}, det, mesh, f.log)
	if err != nil {
		return err
	}
	f.pipeline = p
	return nil
}

// Estimate runs one frame. frame may be 8-bit BGR or BGRA (camera and
// IMRead output) or float32 RGB in 0..255. A nil Prediction with a nil
// error means no face is in view.
//
// When the reported confidence is below DetectionConfidence the cached
// region is dropped after the result is produced, so the next frame runs
// full detection.
func (f *FaceMesh) Estimate(frame gocv.Mat, mode ReturnMode) (*Prediction, error) {
	if f.pipeline == nil {
		return nil, ErrNotLoaded
	}

	input, release, err := toPipelineFrame(frame)
	if err != nil {
		return nil, err
	}
	defer release()

	pred, err := f.pipeline.Predict(input)
	if err != nil {
		return nil, err
	}
	if pred == nil {
		f.log.Debug("no face in view")
		return nil, nil
	}

	result := &Prediction{
		FaceInViewConfidence: pred.Confidence,
		BoundingBox:          pred.BoundingBox,
	}
	if mode == Owned {
		result.MeshMat = pred.Mesh
		result.owned = true
	} else {
		result.Mesh = matToPoints(pred.Mesh)
		pred.Mesh.Close()
	}

	f.clearPipelineROIs(pred.Confidence)

	return result, nil
}

// clearPipelineROIs drops tracking state after a low-confidence frame
func (f *FaceMesh) clearPipelineROIs(confidence float32) {
	if confidence < f.detectionConfidence {
		f.log.WithFields(logrus.Fields{
			"confidence": confidence,
			"threshold":  f.detectionConfidence,
		}).Debug("confidence below threshold, clearing ROI")
		f.pipeline.ClearROIs()
	}
}

// ClearROIs forces full detection on the next frame
func (f *FaceMesh) ClearROIs() {
	if f.pipeline != nil {
		f.pipeline.ClearROIs()
	}
}

// LastTiming returns per-stage timing of the last Estimate call
func (f *FaceMesh) LastTiming() Timing {
	if f.pipeline == nil {
		return Timing{}
	}
	return f.pipeline.LastTiming()
}

// LastMode reports whether the last frame ran detection or tracking
func (f *FaceMesh) LastMode() string {
	if f.pipeline == nil {
		return string(pipeline.ModeIdle)
	}
	return string(f.pipeline.LastMode())
}

// ID returns the session id attached to this instance's log entries
func (f *FaceMesh) ID() string {
	return f.id
}

// Close releases models and the runtime reference. The FaceMesh can be
// loaded again afterwards.
func (f *FaceMesh) Close() error {
	var errs []error

	for _, m := range f.models {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.models = nil
	f.pipeline = nil

	if f.backend != nil {
		if err := f.backend.Close(); err != nil {
			errs = append(errs, err)
		}
		f.backend = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
