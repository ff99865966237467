package inference

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/models/postprocess"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// ModelLoadError is returned when the runtime or the model cannot be loaded.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// initialize sets up the ONNX Runtime environment once per process.
func initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	initialized = true
	return nil
}

// Shutdown destroys the ONNX Runtime environment. Sessions must be closed first.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}
	initialized = false
	return nil
}

// Session is a Detector backed by an ONNX Runtime session.
//
// Input and output tensors are allocated once and reused for every call, so
// Detect calls are serialized.
type Session struct {
	mu          sync.Mutex
	config      Config
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	outputShape ort.Shape
	inputSize   image.Point
	nms         postprocess.NMSConfig
}

// NewSession loads a model and prepares it for inference.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *Session: The detector session.
//   - *ModelLoadError if the runtime, the model or its tensors cannot be set up.
//
// @example
// config := DefaultConfig()
// config.ModelPath = "yolov8n.onnx"
// session, err := NewSession(config)
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// defer session.Close()
func NewSession(config Config) (*Session, error) {
	fail := func(err error) (*Session, error) {
		return nil, &ModelLoadError{Path: config.ModelPath, Err: err}
	}

	if err := config.Validate(); err != nil {
		return fail(err)
	}
	if err := initialize(config.LibraryPath); err != nil {
		return fail(err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return fail(fmt.Errorf("error reading model info: %w", err))
	}
	inputInfo, err := selectInfo(inputs, config.InputName)
	if err != nil {
		return fail(fmt.Errorf("input: %w", err))
	}
	outputInfo, err := selectInfo(outputs, config.OutputName)
	if err != nil {
		return fail(fmt.Errorf("output: %w", err))
	}

	inputShape, err := resolveInputShape(inputInfo.Dimensions, config.Width, config.Height)
	if err != nil {
		return fail(err)
	}
	outputShape, err := resolveOutputShape(outputInfo.Dimensions)
	if err != nil {
		return fail(err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return fail(fmt.Errorf("error creating input tensor: %w", err))
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return fail(fmt.Errorf("error creating output tensor: %w", err))
	}

	session, err := newAdvancedSession(config, inputInfo.Name, outputInfo.Name, inputTensor, outputTensor)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fail(err)
	}

	return &Session{
		config:      config,
		session:     session,
		input:       inputTensor,
		output:      outputTensor,
		outputShape: outputShape,
		inputSize:   image.Pt(int(inputShape[3]), int(inputShape[2])),
		nms:         postprocess.NMSConfig{IoUThreshold: config.NMSThreshold},
	}, nil
}

func newAdvancedSession(
	config Config,
	inputName, outputName string,
	input, output ort.ArbitraryTensor,
) (*ort.AdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(config.InterOpThreads); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}
	if err := config.Provider.appendTo(options, config.DeviceID); err != nil {
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}
	return session, nil
}

// selectInfo returns the named tensor info, or the first one when name is empty.
func selectInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, error) {
	if len(infos) == 0 {
		return ort.InputOutputInfo{}, fmt.Errorf("model declares no tensors")
	}
	if name == "" {
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("no tensor named %q", name)
}

// resolveInputShape fills dynamic dimensions of an NCHW input from the
// configured size. A configured size always wins over the model.
func resolveInputShape(dims ort.Shape, width, height int) (ort.Shape, error) {
	if len(dims) != 4 {
		return nil, fmt.Errorf("expected NCHW input, got shape %v", dims)
	}
	shape := ort.NewShape(1, int64(images.Channels), dims[2], dims[3])
	if dims[1] > 0 && dims[1] != int64(images.Channels) {
		return nil, fmt.Errorf("expected %d input channels, got %d", images.Channels, dims[1])
	}
	if height > 0 {
		shape[2] = int64(height)
	}
	if width > 0 {
		shape[3] = int64(width)
	}
	if shape[2] <= 0 || shape[3] <= 0 {
		return nil, fmt.Errorf("input shape %v is dynamic and no size is configured", dims)
	}
	return shape, nil
}

// resolveOutputShape accepts a dynamic batch dimension and nothing else.
func resolveOutputShape(dims ort.Shape) (ort.Shape, error) {
	shape := ort.NewShape(dims...)
	for i, d := range shape {
		if d > 0 {
			continue
		}
		if i == 0 && len(shape) == 3 {
			shape[i] = 1
			continue
		}
		return nil, fmt.Errorf("output shape %v has a dynamic dimension", dims)
	}
	return shape, nil
}

// InputSize returns the network input width (X) and height (Y).
func (s *Session) InputSize() image.Point { return s.inputSize }

// Detect copies the tensor into the session input, runs the model and
// returns suppressed candidates in tensor pixels.
//
// Arguments:
//   - ctx: Checked before the pass starts. A running pass cannot be cancelled.
//   - t: The letterboxed input. It is not released.
//
// Returns:
//   - The candidates.
//   - An error if the tensor does not fit the model or the run fails.
func (s *Session) Detect(ctx context.Context, t *images.Tensor) ([]postprocess.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t == nil || t.Released() {
		return nil, fmt.Errorf("input tensor is released")
	}
	if t.Width() != s.inputSize.X || t.Height() != s.inputSize.Y {
		return nil, fmt.Errorf("input tensor is %dx%d, model expects %dx%d",
			t.Width(), t.Height(), s.inputSize.X, s.inputSize.Y)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, fmt.Errorf("session is closed")
	}

	if err := copyInput(s.input, t); err != nil {
		return nil, err
	}
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("error running ORT session: %w", err)
	}

	raws, err := DecodeOutput(s.config.Layout, s.output.GetData(), s.outputShape, s.config.ConfidenceFloor)
	if err != nil {
		return nil, err
	}
	return postprocess.NMSSort(raws, &s.nms), nil
}

// copyInput fills the bound input from the tensor after checking both shapes agree.
func copyInput(input *ort.Tensor[float32], t *images.Tensor) error {
	dense := t.Dense()
	if dense == nil {
		return fmt.Errorf("input tensor is released")
	}
	if err := checkInputShape(dense.Shape(), input.GetShape()); err != nil {
		return err
	}
	data, ok := dense.Data().([]float32)
	if !ok {
		return fmt.Errorf("input tensor is %v, expected float32", dense.Dtype())
	}
	copy(input.GetData(), data)
	return nil
}

func checkInputShape(got tensor.Shape, want ort.Shape) error {
	if len(got) != len(want) {
		return fmt.Errorf("input tensor shape %v does not match model input %v", got, want)
	}
	for i := range got {
		if int64(got[i]) != want[i] {
			return fmt.Errorf("input tensor shape %v does not match model input %v", got, want)
		}
	}
	return nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.session != nil {
		keep(s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		keep(s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		keep(s.output.Destroy())
		s.output = nil
	}
	return firstErr
}
