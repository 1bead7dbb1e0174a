//go:build darwin

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tsawler/go-metal/checkpoints"

	"github.com/dudu/facemesh/internal/logging"
	"github.com/dudu/facemesh/internal/modelsrc"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: metalcheck <model.onnx | https://... | s3://bucket/key>...")
		fmt.Println("\nChecks whether go-metal can import the detector and mesh models.")
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{Level: "warn"})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fetcher := modelsrc.New(modelsrc.Config{Timeout: time.Minute, S3Region: "us-east-1", S3Anonymous: true}, log)

	failed := 0
	for _, src := range os.Args[1:] {
		if err := check(fetcher, src); err != nil {
			fmt.Printf("❌ %s: %v\n", src, err)
			failed++
		}
	}
	if failed > 0 {
		fmt.Println("\ngo-metal only supports: Conv, MatMul, Add, Relu, LeakyRelu,")
		fmt.Println("Sigmoid, Tanh, BatchNorm, Dropout, Softmax, Flatten")
		os.Exit(1)
	}
}

func check(fetcher *modelsrc.Fetcher, src string) error {
	path := src
	if modelsrc.IsRemote(src) {
		data, err := fetcher.Fetch(context.Background(), src)
		if err != nil {
			return err
		}
		tmp, err := os.CreateTemp("", "metalcheck-*.onnx")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		path = tmp.Name()
	}

	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("✅ %s: %d layers, %d weight tensors\n",
		src, len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}
