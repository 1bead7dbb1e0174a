package facemesh

import (
	"github.com/sirupsen/logrus"

	"github.com/dudu/facemesh/internal/inference"
)

// backend turns model bytes into runnable models
type backend interface {
	Open() error
	NewModel(name string, data []byte) (inference.Model, error)
	Close() error
}

// ortBackend runs models on ONNX Runtime
type ortBackend struct {
	libraryPath string
	options     inference.SessionOptions
	log         logrus.FieldLogger
}

func newORTBackend(opts Options, log logrus.FieldLogger) *ortBackend {
	return &ortBackend{
		libraryPath: opts.LibraryPath,
		options:     inference.SessionOptions{CoreML: opts.CoreML},
		log:         log,
	}
}

func (b *ortBackend) Open() error {
	return inference.Initialize(b.libraryPath)
}

func (b *ortBackend) NewModel(name string, data []byte) (inference.Model, error) {
	return inference.NewSession(name, data, b.options, b.log)
}

func (b *ortBackend) Close() error {
	return inference.Shutdown()
}
