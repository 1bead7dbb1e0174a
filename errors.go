package facemesh

import (
	"errors"
	"fmt"

	"github.com/dudu/facemesh/internal/geom"
)

var (
	// ErrNotLoaded is returned by calls on a FaceMesh whose models are not loaded
	ErrNotLoaded = errors.New("facemesh: models not loaded")

	// ErrInvalidFrame is returned for empty frames or unsupported Mat types
	ErrInvalidFrame = errors.New("facemesh: invalid frame")

	// ErrInvalidGeometry is returned for malformed boxes
	ErrInvalidGeometry = geom.ErrInvalidGeometry
)

// ModelLoadError reports a model that could not be fetched, parsed or
// turned into a session. The FaceMesh stays unusable until Load succeeds.
type ModelLoadError struct {
	Model  string // "detector", "mesh" or "runtime"
	Source string
	Err    error
}

func (e *ModelLoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("facemesh: failed to load %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("facemesh: failed to load %s from %s: %v", e.Model, e.Source, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}
