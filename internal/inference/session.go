package inference

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	refs   int
	initMu sync.Mutex
)

// DefaultLibraryPath returns the platform's usual onnxruntime shared library name
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// Initialize sets up the ONNX Runtime environment. Calls are reference
// counted; each successful Initialize must be paired with Shutdown.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if refs > 0 {
		refs++
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	refs = 1
	return nil
}

// Shutdown releases one reference and destroys the environment with the last one
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if refs == 0 {
		return nil
	}
	refs--
	if refs > 0 {
		return nil
	}

	return ort.DestroyEnvironment()
}

// Model is an opaque network: one input tensor in, its outputs out.
type Model interface {
	Run(input Tensor) ([]Tensor, error)
	Close() error
}

// SessionOptions tune session creation
type SessionOptions struct {
	CoreML bool // try the CoreML execution provider, fall back to CPU
}

// Session wraps an ONNX Runtime inference session built from in-memory model bytes
type Session struct {
	session     *ort.DynamicAdvancedSession
	name        string
	inputNames  []string
	outputNames []string
}

// NewSession creates a session from ONNX model bytes. Input and output names
// are read from the model itself; the first input is the one fed by Run.
func NewSession(name string, onnxData []byte, opts SessionOptions, log logrus.FieldLogger) (*Session, error) {
	if !IsInitialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(onnxData)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", name, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has %d inputs and %d outputs", name, len(inputs), len(outputs))
	}

	inputNames := []string{inputs[0].Name}
	outputNames := make([]string, len(outputs))
	for i, info := range outputs {
		outputNames[i] = info.Name
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if opts.CoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			log.WithFields(logrus.Fields{"model": name, "error": err}).Warn("CoreML provider unavailable, using CPU")
		} else {
			log.WithField("model", name).Info("CoreML provider enabled")
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(onnxData, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", name, err)
	}

	log.WithFields(logrus.Fields{
		"model":   name,
		"input":   inputs[0].String(),
		"outputs": len(outputNames),
	}).Debug("session created")

	return &Session{
		session:     session,
		name:        name,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference. Output tensors are allocated by onnxruntime and
// copied out, so nothing returned references runtime memory.
func (s *Session) Run(input Tensor) ([]Tensor, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, len(s.outputNames))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("%s inference failed: %w", s.name, err)
	}

	result := make([]Tensor, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("%s output %q is not a float32 tensor", s.name, s.outputNames[i])
		}
		data := t.GetData()
		result[i] = Tensor{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), data...),
		}
	}
	return result, nil
}

// Name returns the model name used in logs and errors
func (s *Session) Name() string {
	return s.name
}

// Close releases session resources
func (s *Session) Close() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// IsInitialized reports whether the environment is live
func IsInitialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return refs > 0
}
