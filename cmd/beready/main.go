// beready estimates how long the line in front of a camera will take and
// serves the estimate over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/pkg/detection/yolo"
	"github.com/teslashibe/go-beready/pkg/estimate"
	"github.com/teslashibe/go-beready/pkg/queue"
	"github.com/teslashibe/go-beready/pkg/video"
	"github.com/teslashibe/go-beready/pkg/video/capture"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	level := os.Getenv("LOG_LEVEL")
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	app, err := queue.New(cfg, queue.WithSourceOpener(openCamera))
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional YAML file, BEREADY_* env vars and
// finally any flags given on the command line.
func loadConfig() (queue.Config, error) {
	cfg := queue.DefaultConfig()

	configPath := flag.String("config", "", "YAML config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	videoURL := flag.String("video", cfg.Video.URL, "Video file, stream URL or camera index")
	model := flag.String("model", cfg.Detector.ModelPath, "YOLOv8 ONNX model path")
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	strategy := flag.String("strategy", string(cfg.Estimate.Strategy), "Estimator: window, dwell, both, combined")
	perPerson := flag.Duration("per-person-wait", cfg.Estimate.PerPersonWait, "Wait contributed by each person in line")
	eviction := flag.Int("eviction-frames", cfg.Estimate.EvictionThreshold, "Missed frames before a person counts as gone")
	initialWait := flag.Duration("initial-wait", cfg.Estimate.InitialWait, "Wait published before the first departure (dwell)")
	detectEvery := flag.Int("detect-interval", cfg.Video.DetectInterval, "Run detection on every Nth frame")
	flag.Parse()

	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return cfg, err
		}
	}
	cfg.LoadEnvConfig()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			cfg.Debug = *debug
		case "video":
			cfg.Video.URL = *videoURL
		case "model":
			cfg.Detector.ModelPath = *model
		case "addr":
			cfg.Addr = *addr
		case "strategy":
			cfg.Estimate.Strategy = estimate.Strategy(*strategy)
		case "per-person-wait":
			cfg.Estimate.PerPersonWait = *perPerson
		case "eviction-frames":
			cfg.Estimate.EvictionThreshold = *eviction
		case "initial-wait":
			cfg.Estimate.InitialWait = *initialWait
		case "detect-interval":
			cfg.Video.DetectInterval = *detectEvery
		}
	})
	return cfg, nil
}

// openCamera loads the detector and connects to the configured stream.
func openCamera(cfg queue.Config) (queue.Source, error) {
	start := time.Now()
	det, err := yolo.New(yolo.Config{
		ModelPath:        cfg.Detector.ModelPath,
		ConfidenceThresh: cfg.Detector.Confidence,
		NMSThresh:        cfg.Detector.NMS,
		InputWidth:       cfg.Detector.InputSize,
		InputHeight:      cfg.Detector.InputSize,
	})
	if err != nil {
		return nil, err
	}
	log.Info("detector loaded", "model", cfg.Detector.ModelPath, "took", time.Since(start))

	r, err := capture.Open(cfg.Video, det)
	if err != nil {
		det.Close()
		return nil, err
	}
	return video.NewSource(r, cfg.Video.DetectInterval), nil
}
