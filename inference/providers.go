package inference

import (
	"fmt"
	"runtime"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// Provider represents an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU uses the default CPU execution provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML uses Apple CoreML for macOS acceleration.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO uses the Intel OpenVINO library.
	ProviderOpenVINO Provider = "openvino"
)

// Providers is a list of all supported providers.
var Providers = []Provider{ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO}

func (p Provider) validate() error {
	if p == "" {
		return nil
	}
	for _, known := range Providers {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("unsupported execution provider %q", p)
}

// appendTo registers the provider on the session options. The CPU provider is
// always present and needs no registration.
func (p Provider) appendTo(options *ort.SessionOptions, deviceID int) error {
	switch p {
	case ProviderCUDA:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return fmt.Errorf("error creating CUDA options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
			return fmt.Errorf("error updating CUDA options: %w", err)
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return fmt.Errorf("error enabling CUDA: %w", err)
		}
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	case ProviderOpenVINO:
		err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
		if err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	}
	return nil
}

// DefaultLibraryPath returns the conventional onnxruntime location for this platform.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	}
	if runtime.GOARCH == "arm64" {
		return "third_party/onnxruntime_arm64.so"
	}
	return "third_party/onnxruntime.so"
}
