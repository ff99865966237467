// Package config - Startup configuration for the detection pipeline.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/nvr-ai/go-vision-detect/inference"
	"github.com/nvr-ai/go-vision-detect/output"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Source selects where frames come from.
type Source struct {
	// Path is a video file, stream URL or a directory of images. Empty selects Device.
	Path string `json:"path" yaml:"path"`
	// Device is the camera index used when Path is empty.
	Device int `json:"device" yaml:"device"`
	// FrameID is stamped on every frame header.
	FrameID string `json:"frame_id" yaml:"frame_id"`
}

// Config is the process-wide configuration. It is loaded once at startup and
// never modified afterwards.
type Config struct {
	// Detector configures the model and runtime. Its thresholds are taken from
	// ScoreThreshold and NMSThreshold.
	Detector inference.Config `json:"detector" yaml:"detector"`
	// ScoreThreshold is the minimum class probability, in (0, 1].
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// NMSThreshold is the IoU suppression threshold, in (0, 1].
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// OutputMode is "combined" or "split".
	OutputMode output.Mode `json:"output_mode" yaml:"output_mode"`
	// NamesFile is an optional custom label file. When set it must be readable.
	NamesFile string `json:"names_file" yaml:"names_file"`
	// PublishLabeledImage enables the visualization overlay.
	PublishLabeledImage bool `json:"publish_labeled_image" yaml:"publish_labeled_image"`
	// LabeledImageDir receives labeled images when PublishLabeledImage is set.
	LabeledImageDir string `json:"labeled_image_dir" yaml:"labeled_image_dir"`
	// Source selects the frame source.
	Source Source `json:"source" yaml:"source"`
	// JSONOutput is a file for JSON results, "-" for stdout, empty to disable.
	JSONOutput string `json:"json_output" yaml:"json_output"`
	// ListenAddr serves the websocket hub when set, e.g. ":8080".
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	// ReportInterval is the profiler report period. Zero disables reports.
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Detector:        inference.DefaultConfig(),
		ScoreThreshold:  0.5,
		NMSThreshold:    0.45,
		OutputMode:      output.ModeSplit,
		LabeledImageDir: "labeled",
		Source:          Source{FrameID: "camera"},
		JSONOutput:      "-",
		ReportInterval:  30 * time.Second,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - The merged configuration, not yet validated.
//   - An error if the file cannot be read or parsed.
//
// @example
// cfg, err := config.Load("detect.yaml")
//
//	if err != nil {
//	    log.Fatal(err)
//	}
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// DetectorConfig returns the detector configuration with the pipeline
// thresholds applied, so the detector floor and the decoder use the same value.
func (c *Config) DetectorConfig() inference.Config {
	d := c.Detector
	d.ConfidenceFloor = c.ScoreThreshold
	d.NMSThreshold = c.NMSThreshold
	return d
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ScoreThreshold <= 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be in (0, 1], got %v", c.ScoreThreshold)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms_threshold must be in (0, 1], got %v", c.NMSThreshold)
	}
	mode, err := output.ParseMode(string(c.OutputMode))
	if err != nil {
		return err
	}
	c.OutputMode = mode
	if c.PublishLabeledImage && c.LabeledImageDir == "" {
		return fmt.Errorf("labeled_image_dir is required when publish_labeled_image is set")
	}
	if c.ReportInterval < 0 {
		return fmt.Errorf("report_interval must not be negative")
	}
	d := c.DetectorConfig()
	return errors.Wrap(d.Validate(), "detector")
}
