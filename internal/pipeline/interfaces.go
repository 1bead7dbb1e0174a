package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/detector"
	"github.com/dudu/facemesh/internal/landmark"
)

// FaceDetector interface for full-frame face detection
type FaceDetector interface {
	Detect(frame gocv.Mat) ([]detector.Detection, error)
}

// MeshRegressor interface for landmark regression on a cropped patch
type MeshRegressor interface {
	Regress(crop gocv.Mat) (landmark.Landmarks, error)
}

// Mode reports how the last frame located the face
type Mode string

const (
	ModeIdle   Mode = "idle"    // no frame processed yet
	ModeDetect Mode = "detect"  // full detection ran
	ModeTrack  Mode = "track"   // cached ROI reused
	ModeNoFace Mode = "no_face" // detection found nothing
)
