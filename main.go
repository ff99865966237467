package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/nvr-ai/go-vision-detect/config"
	"github.com/nvr-ai/go-vision-detect/controller"
	"github.com/nvr-ai/go-vision-detect/images"
	"github.com/nvr-ai/go-vision-detect/inference"
	"github.com/nvr-ai/go-vision-detect/models"
	"github.com/nvr-ai/go-vision-detect/output"
	"github.com/nvr-ai/go-vision-detect/profiler"
	"github.com/nvr-ai/go-vision-detect/publish"
	"github.com/nvr-ai/go-vision-detect/util"
	"github.com/nvr-ai/go-vision-detect/visualize"
	"github.com/pkg/errors"
)

func main() {
	parser := argparse.NewParser("go-vision-detect", "Object detection on camera frames")
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML configuration file", Default: ""})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "ONNX model file", Default: ""})
	layout := parser.String("", "layout", &argparse.Options{Help: "Model output layout: yolov8 or darknet", Default: ""})
	provider := parser.String("", "provider", &argparse.Options{Help: "Execution provider: cpu, cuda, coreml or openvino", Default: ""})
	namesFile := parser.String("n", "names", &argparse.Options{Help: "Custom label file, one name per line", Default: ""})
	mode := parser.String("", "mode", &argparse.Options{Help: "Output mode: combined or split", Default: ""})
	source := parser.String("s", "source", &argparse.Options{Help: "Video file, stream URL or image directory. Empty uses the camera", Default: ""})
	device := parser.Int("d", "device", &argparse.Options{Help: "Camera device index", Default: -1})
	threshold := parser.Float("t", "threshold", &argparse.Options{Help: "Score threshold", Default: 0.0})
	nms := parser.Float("", "nms", &argparse.Options{Help: "NMS IoU threshold", Default: 0.0})
	labeled := parser.String("", "labeled", &argparse.Options{Help: "Write labeled images to this directory", Default: ""})
	jsonOutput := parser.String("o", "json", &argparse.Options{Help: "JSON results file, - for stdout", Default: ""})
	listen := parser.String("l", "listen", &argparse.Options{Help: "Serve the websocket hub on this address, e.g. :8080", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configFile != "" {
		if cfg, err = config.Load(*configFile); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}

	// Flags override the file.
	if *modelPath != "" {
		cfg.Detector.ModelPath = *modelPath
	}
	if *layout != "" {
		cfg.Detector.Layout = inference.Layout(*layout)
	}
	if *provider != "" {
		cfg.Detector.Provider = inference.Provider(*provider)
	}
	if *namesFile != "" {
		cfg.NamesFile = *namesFile
	}
	if *mode != "" {
		cfg.OutputMode = output.Mode(*mode)
	}
	if *source != "" {
		cfg.Source.Path = *source
	}
	if *device >= 0 {
		cfg.Source.Device = *device
	}
	if *threshold > 0 {
		cfg.ScoreThreshold = float32(*threshold)
	}
	if *nms > 0 {
		cfg.NMSThreshold = float32(*nms)
	}
	if *labeled != "" {
		cfg.PublishLabeledImage = true
		cfg.LabeledImageDir = *labeled
	}
	if *jsonOutput != "" {
		cfg.JSONOutput = *jsonOutput
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	if err := cfg.Validate(); err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger logs.Log, cfg config.Config) error {
	labels := models.BuiltinLabels()
	if cfg.NamesFile != "" {
		var err error
		if labels, err = models.LoadLabelFile(cfg.NamesFile); err != nil {
			return err
		}
		logger.Infof("Loaded %d labels from %v", labels.Len(), cfg.NamesFile)
	}

	session, err := inference.NewSession(cfg.DetectorConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warnf("Closing session: %v", err)
		}
		if err := inference.Shutdown(); err != nil {
			logger.Warnf("Shutting down onnxruntime: %v", err)
		}
	}()
	logger.Infof("Model %v loaded, input %v, layout %v, provider %v",
		cfg.Detector.ModelPath, session.InputSize(), cfg.Detector.Layout, cfg.Detector.Provider)

	assembler, err := output.NewAssembler(cfg.OutputMode, labels)
	if err != nil {
		return err
	}

	publisher, err := openPublishers(logger, cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	prof := profiler.New(logger, profiler.Options{ReportInterval: cfg.ReportInterval})

	opts := controller.Options{
		Detector:       session,
		Assembler:      assembler,
		Publisher:      publisher,
		ScoreThreshold: cfg.ScoreThreshold,
		Profiler:       prof,
	}
	if cfg.PublishLabeledImage {
		sink, err := visualize.NewDirectorySink(cfg.LabeledImageDir)
		if err != nil {
			return err
		}
		opts.Overlay = visualize.NewOverlay(labels)
		opts.Sink = sink
	}

	ctrl, err := controller.New(logger, opts)
	if err != nil {
		return err
	}

	mailbox := controller.NewMailbox()
	prof.AddMetricsCollector(ctrl)
	prof.AddMetricsCollector(mailbox)
	if cfg.ReportInterval > 0 {
		prof.Start()
		defer prof.Stop()
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx, mailbox.Frames()) }()

	feedErr := feed(ctx, logger, cfg.Source, mailbox)
	mailbox.Close()
	runErr := <-done

	prof.Report()
	if feedErr != nil {
		return feedErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// openPublishers builds the JSON and websocket publishers the configuration asks for.
func openPublishers(logger logs.Log, cfg config.Config) (publish.Publisher, error) {
	var pubs publish.Multi
	if cfg.JSONOutput != "" {
		jp, err := publish.OpenJSONFile(cfg.JSONOutput)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, jp)
	}
	if cfg.ListenAddr != "" {
		hub := publish.NewWebSocketHub(logger)
		go func() {
			logger.Infof("Serving results on %v", cfg.ListenAddr)
			if err := http.ListenAndServe(cfg.ListenAddr, hub); err != nil {
				logger.Errorf("HTTP server stopped: %v", err)
			}
		}()
		pubs = append(pubs, hub)
	}
	return pubs, nil
}

// feed pushes frames from the configured source into the mailbox.
//
// Image directories are replayed without dropping frames. Live sources drop
// frames while the pipeline is busy.
func feed(ctx context.Context, logger logs.Log, src config.Source, mailbox *controller.Mailbox) error {
	if info, err := os.Stat(src.Path); err == nil && info.IsDir() {
		files, err := util.LoadDirectoryImageFiles(src.Path)
		if err != nil {
			return err
		}
		logger.Infof("Replaying %d images from %v", len(files), src.Path)
		for i, file := range files {
			frame, err := util.DecodeFrame(file, uint32(i+1), src.FrameID)
			if err != nil {
				logger.Warnf("%v", err)
				continue
			}
			if err := mailbox.Submit(ctx, frame); err != nil {
				return nil
			}
		}
		return nil
	}

	capture, err := util.OpenCapture(src.Path, src.Device, src.FrameID)
	if err != nil {
		return err
	}
	defer capture.Close()

	logger.Infof("Reading frames from %v", capture.Name())
	n := capture.Stream(ctx, func(frame images.Frame) { mailbox.Offer(frame) })
	logger.Infof("Read %d frames from %v, dropped %d", n, capture.Name(), mailbox.Dropped())
	return nil
}
