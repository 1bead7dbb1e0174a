package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh"
	"github.com/dudu/facemesh/internal/camera"
	"github.com/dudu/facemesh/internal/logging"
	"github.com/dudu/facemesh/internal/ui"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

type Config struct {
	EnvFile       string
	Source        string
	Images        []string
	DetectorModel string
	MeshModel     string
	Detector      string
	LibraryPath   string
	CoreML        bool
	Preview       bool
	JSON          bool
	WithMesh      bool
	TargetFPS     int
	MaxImageSize  int
	LogLevel      string
	LogFile       string
}

func main() {
	config := parseFlags()

	if err := loadEnv(&config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if config.DetectorModel == "" || config.MeshModel == "" {
		fmt.Fprintln(os.Stderr, "Error: --detector-model and --mesh-model are required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.EnvFile, "env", ".env", "Optional .env file with FACEMESH_* settings")
	flag.StringVar(&config.Source, "source", "0", "Camera index, video file or stream URL")
	flag.StringVar(&config.Source, "s", "0", "Video source (shorthand)")
	flag.StringVar(&config.DetectorModel, "detector-model", "", "Detector model: path, http(s) URL or s3://bucket/key")
	flag.StringVar(&config.MeshModel, "mesh-model", "", "Mesh model: path, http(s) URL or s3://bucket/key")
	flag.StringVar(&config.Detector, "detector", string(facemesh.DetectorBlazeFace), "Detector: blazeface or pigo")
	flag.StringVar(&config.LibraryPath, "ort-lib", "", "onnxruntime shared library path")
	flag.BoolVar(&config.CoreML, "coreml", false, "Try the CoreML execution provider")
	flag.BoolVar(&config.Preview, "preview", true, "Show preview window")
	flag.BoolVar(&config.Preview, "p", true, "Show preview window (shorthand)")
	flag.BoolVar(&config.JSON, "json", false, "Write one JSON line per frame to stdout")
	flag.BoolVar(&config.WithMesh, "mesh", false, "Include mesh points in JSON output")
	flag.IntVar(&config.TargetFPS, "fps", 30, "Target frames per second (0 = unpaced)")
	flag.IntVar(&config.MaxImageSize, "max-size", 1280, "Downscale still images larger than this")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFile, "log-file", "", "Also write logs to this rotating file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "facemesh - real-time 3D face mesh tracking\n\n")
		fmt.Fprintf(os.Stderr, "Usage: facemesh [options] [image ...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  facemesh --detector-model models/blazeface.onnx --mesh-model models/facemesh.onnx\n")
		fmt.Fprintf(os.Stderr, "  facemesh --source clip.mp4 --json --preview=false\n")
		fmt.Fprintf(os.Stderr, "  facemesh --json --mesh portrait.jpg\n")
	}

	flag.Parse()
	config.Images = flag.Args()
	return config
}

// loadEnv fills settings left empty on the command line from the
// environment, after loading the optional .env file.
func loadEnv(config *Config) error {
	if config.EnvFile != "" {
		if err := godotenv.Load(config.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", config.EnvFile, err)
		}
	}

	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&config.DetectorModel, "FACEMESH_DETECTOR_MODEL")
	fill(&config.MeshModel, "FACEMESH_MESH_MODEL")
	fill(&config.LibraryPath, "FACEMESH_ORT_LIBRARY")
	fill(&config.LogFile, "FACEMESH_LOG_FILE")
	return nil
}

func run(config Config) error {
	log, err := logging.New(logging.Config{Level: config.LogLevel, File: config.LogFile})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := facemesh.DefaultOptions()
	opts.Detector = facemesh.DetectorKind(config.Detector)
	opts.DetectorModel = config.DetectorModel
	opts.MeshModel = config.MeshModel
	opts.LibraryPath = config.LibraryPath
	opts.CoreML = config.CoreML
	opts.Logger = log

	log.WithField("detector", opts.Detector).Info("loading models")
	fm, err := facemesh.Load(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}
	defer fm.Close()

	var out *recordWriter
	if config.JSON {
		out = newRecordWriter(os.Stdout)
	}

	if len(config.Images) > 0 {
		return runImages(ctx, config, fm, out, log)
	}
	return runVideo(ctx, config, fm, out, log)
}

func runVideo(ctx context.Context, config Config, fm *facemesh.FaceMesh, out *recordWriter, log logrus.FieldLogger) error {
	cam, err := camera.Open(config.Source, config.TargetFPS)
	if err != nil {
		return err
	}
	defer cam.Close()
	log.WithFields(logrus.Fields{
		"source": cam.Name(),
		"size":   fmt.Sprintf("%dx%d", cam.Width(), cam.Height()),
	}).Info("video source opened")

	var window *ui.Window
	if config.Preview {
		window = ui.NewWindow("facemesh", cam.Width(), cam.Height())
		defer window.Close()
	}

	frame := gocv.NewMat()
	defer frame.Close()

	log.Info("running, press 'q' to quit")

	for n := 0; ; n++ {
		ok, err := cam.Read(ctx, &frame)
		if errors.Is(err, context.Canceled) {
			log.Info("shutting down")
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			log.Info("video source exhausted")
			return nil
		}
		if frame.Empty() {
			continue
		}

		pred, err := fm.Estimate(frame, facemesh.Materialized)
		if err != nil {
			log.WithField("error", err).Warn("estimate failed")
			continue
		}

		timing := fm.LastTiming()
		if out != nil {
			if err := out.Write(newFrameRecord(n, cam.Name(), pred, fm.LastMode(), timing, config.WithMesh)); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(os.Stderr, "\rD:%3.0fms C:%3.0fms R:%3.0fms T:%3.0fms %-7s  ",
				ms(timing.Detection), ms(timing.Crop), ms(timing.Regression), ms(timing.Total), fm.LastMode())
		}

		if window != nil {
			window.Show(&frame, overlayFor(pred, fm.LastMode()))
			// WaitKey must be called to process window events on macOS
			key := window.WaitKey(1)
			if key == 'q' || key == 27 {
				return nil
			}
			if key == 'r' {
				fm.ClearROIs()
			}
		}
	}
}

// runImages treats each image as an independent frame
func runImages(ctx context.Context, config Config, fm *facemesh.FaceMesh, out *recordWriter, log logrus.FieldLogger) error {
	var window *ui.Window

	for n, path := range config.Images {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := loadImage(path, config.MaxImageSize)
		if err != nil {
			log.WithFields(logrus.Fields{"image": path, "error": err}).Warn("skipping image")
			continue
		}

		fm.ClearROIs()
		pred, err := fm.Estimate(frame, facemesh.Materialized)
		if err != nil {
			frame.Close()
			return fmt.Errorf("%s: %w", path, err)
		}

		if out != nil {
			if err := out.Write(newFrameRecord(n, path, pred, fm.LastMode(), fm.LastTiming(), config.WithMesh)); err != nil {
				frame.Close()
				return err
			}
		}

		if config.Preview {
			if window == nil {
				window = ui.NewWindow("facemesh", frame.Cols(), frame.Rows())
				defer window.Close()
			}
			window.Show(&frame, overlayFor(pred, fm.LastMode()))
			if key := window.WaitKey(0); key == 'q' || key == 27 {
				frame.Close()
				return nil
			}
		}
		frame.Close()
	}
	return nil
}

// loadImage decodes and orients a still image and returns it as an 8-bit
// BGR Mat no larger than maxSize on either side.
func loadImage(path string, maxSize int) (gocv.Mat, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return gocv.Mat{}, err
	}
	if maxSize > 0 && (img.Bounds().Dx() > maxSize || img.Bounds().Dy() > maxSize) {
		img = imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	}
	return gocv.ImageToMatRGB(toNRGBA(img))
}

func toNRGBA(img image.Image) image.Image {
	if _, ok := img.(*image.NRGBA); ok {
		return img
	}
	return imaging.Clone(img)
}

func overlayFor(pred *facemesh.Prediction, mode string) *ui.Overlay {
	o := &ui.Overlay{Mode: mode}
	if pred != nil {
		o.Points = pred.Mesh
		o.Box = pred.BoundingBox
		o.Confidence = pred.FaceInViewConfidence
	}
	return o
}
