package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	ort "github.com/yalue/onnxruntime_go"
)

func TestGuessLayout(t *testing.T) {
	assert.Equal(t, "nchw", guessLayout(ort.NewShape(1, 3, 128, 128)))
	assert.Equal(t, "nhwc", guessLayout(ort.NewShape(1, 192, 192, 3)))
	assert.Equal(t, "unknown", guessLayout(ort.NewShape(1, 896, 16)))
}

func TestDescribe(t *testing.T) {
	detector := []ort.InputOutputInfo{
		{Name: "regressors", Dimensions: ort.NewShape(1, 896, 16)},
		{Name: "classificators", Dimensions: ort.NewShape(1, 896, 1)},
	}
	assert.Equal(t, "Looks like a BlazeFace detector with 896 anchors", describe(detector))

	mesh := []ort.InputOutputInfo{
		{Name: "conv2d_21", Dimensions: ort.NewShape(1, 1, 1, 1404)},
		{Name: "conv2d_31", Dimensions: ort.NewShape(1, 1, 1, 1)},
	}
	assert.Equal(t, "Looks like a mesh regressor with 468 landmarks", describe(mesh))

	assert.Empty(t, describe(nil))
}
