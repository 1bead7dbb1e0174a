package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facemesh/internal/inference"
	"github.com/dudu/facemesh/internal/logging"
	"github.com/dudu/facemesh/internal/modelsrc"
)

func main() {
	libPath := flag.String("ort-lib", "", "onnxruntime shared library path")
	timeout := flag.Duration("timeout", time.Minute, "Download timeout for remote sources")
	region := flag.String("s3-region", "us-east-1", "Region for s3:// sources")
	flag.Usage = func() {
		fmt.Println("Usage: modelinfo [options] <model.onnx | https://... | s3://bucket/key>")
		fmt.Println("\nPrints the inputs and outputs of an ONNX model and the facemesh")
		fmt.Println("settings they imply.")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	src := flag.Arg(0)

	if err := run(src, *libPath, *timeout, *region); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

func run(src, libPath string, timeout time.Duration, region string) error {
	log, err := logging.New(logging.Config{Level: "info"})
	if err != nil {
		return err
	}

	fetcher := modelsrc.New(modelsrc.Config{Timeout: timeout, S3Region: region, S3Anonymous: true}, log)
	data, err := fetcher.Fetch(context.Background(), src)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	fmt.Printf("Model: %s (%d bytes)\n", src, len(data))

	if err := inference.Initialize(libPath); err != nil {
		fmt.Println("\nYou may need to install ONNX Runtime:")
		fmt.Println("  brew install onnxruntime")
		return err
	}
	defer inference.Shutdown()

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return fmt.Errorf("failed to read model info: %w", err)
	}

	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%v, layout=%s\n",
			info.Name, info.Dimensions, info.DataType, guessLayout(info.Dimensions))
	}

	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}

	if hint := describe(outputs); hint != "" {
		fmt.Printf("\n%s\n", hint)
	}

	if !modelsrc.IsRemote(src) {
		printMetadata(src)
	}
	return nil
}

// guessLayout infers channel order from a 4D image input shape
func guessLayout(dims ort.Shape) string {
	if len(dims) != 4 {
		return "unknown"
	}
	switch {
	case dims[1] == 3:
		return string(inference.LayoutNCHW)
	case dims[3] == 3:
		return string(inference.LayoutNHWC)
	}
	return "unknown"
}

// describe recognizes the two model families facemesh consumes
func describe(outputs []ort.InputOutputInfo) string {
	var hasFlag bool
	var coords, anchors int64
	for _, info := range outputs {
		n := info.Dimensions.FlattenedSize()
		switch {
		case n == 1:
			hasFlag = true
		case n%16 == 0 && len(info.Dimensions) == 3 && info.Dimensions[2] == 16:
			anchors = info.Dimensions[1]
		case n%3 == 0:
			coords = n / 3
		}
	}
	switch {
	case anchors > 0:
		return fmt.Sprintf("Looks like a BlazeFace detector with %d anchors", anchors)
	case hasFlag && coords > 0:
		return fmt.Sprintf("Looks like a mesh regressor with %d landmarks", coords)
	}
	return ""
}

func printMetadata(path string) {
	fmt.Println("\nMetadata:")
	metadata, err := ort.GetModelMetadata(path)
	if err != nil {
		fmt.Printf("  (Could not read metadata: %v)\n", err)
		return
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		fmt.Printf("  Producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Printf("  Version: %d\n", version)
	}
	if domain, err := metadata.GetDomain(); err == nil {
		fmt.Printf("  Domain: %s\n", domain)
	}
	if desc, err := metadata.GetDescription(); err == nil {
		fmt.Printf("  Description: %s\n", desc)
	}
}
