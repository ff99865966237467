package inference

import (
	"fmt"
)

// Layout describes how a model arranges its output tensor.
type Layout string

const (
	// LayoutYOLOv8 is [1, 4+K, N]: box rows cx, cy, w, h followed by K class rows.
	LayoutYOLOv8 Layout = "yolov8"
	// LayoutDarknet is [1, N, 5+K]: cx, cy, w, h, objectness and K class probabilities per row.
	LayoutDarknet Layout = "darknet"
)

// Config configures the ONNX Runtime detector.
type Config struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string `json:"model_path" yaml:"model_path"`
	// LibraryPath is the onnxruntime shared library. Empty uses the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName and OutputName select the model tensors. Empty selects the first one.
	InputName  string `json:"input_name"  yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// Width and Height override the network input size. Zero reads it from the model.
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// Layout is the output tensor layout.
	Layout Layout `json:"layout" yaml:"layout"`
	// ConfidenceFloor zeroes class probabilities below it.
	ConfidenceFloor float32 `json:"confidence_floor" yaml:"confidence_floor"`
	// NMSThreshold is the IoU above which overlapping candidates are suppressed.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// Provider selects the execution provider.
	Provider Provider `json:"provider" yaml:"provider"`
	// DeviceID is passed to GPU providers.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// IntraOpThreads and InterOpThreads size the runtime thread pools. Zero uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// DefaultConfig returns a configuration for a YOLOv8 style model on the CPU.
//
// Returns:
//   - Config: The default configuration. ModelPath must still be set.
//
// @example
// config := DefaultConfig()
// config.ModelPath = "path/to/model.onnx"
// session, err := NewSession(config)
func DefaultConfig() Config {
	return Config{
		LibraryPath:     DefaultLibraryPath(),
		Layout:          LayoutYOLOv8,
		ConfidenceFloor: 0.5,
		NMSThreshold:    0.45,
		Provider:        ProviderCPU,
	}
}

// Validate checks the configuration before a session is created.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("invalid input size %dx%d", c.Width, c.Height)
	}
	switch c.Layout {
	case LayoutYOLOv8, LayoutDarknet:
	default:
		return fmt.Errorf("unsupported output layout %q", c.Layout)
	}
	if c.ConfidenceFloor <= 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence floor must be in (0, 1], got %v", c.ConfidenceFloor)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold must be in (0, 1], got %v", c.NMSThreshold)
	}
	return c.Provider.validate()
}
