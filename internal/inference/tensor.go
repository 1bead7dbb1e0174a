package inference

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Layout is the channel order a model expects
type Layout string

const (
	LayoutNCHW Layout = "nchw"
	LayoutNHWC Layout = "nhwc"
)

// Tensor is a dense float32 tensor detached from any runtime memory
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Size returns the number of elements implied by Shape
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Validate checks that Data matches Shape
func (t Tensor) Validate() error {
	if t.Size() != len(t.Data) {
		return fmt.Errorf("tensor shape %v needs %d values, has %d", t.Shape, t.Size(), len(t.Data))
	}
	return nil
}

// FromImage resizes a 3-channel float image to size x size and builds a
// (x - mean) * scale input tensor in the requested layout. img is not modified.
func FromImage(img gocv.Mat, size image.Point, mean, scale float64, layout Layout) (Tensor, error) {
	if img.Empty() {
		return Tensor{}, fmt.Errorf("empty input image")
	}
	if img.Channels() != 3 {
		return Tensor{}, fmt.Errorf("expected 3 channels, got %d", img.Channels())
	}

	// BlobFromImage resizes, subtracts mean, scales and converts HWC to NCHW
	blob := gocv.BlobFromImage(img, scale, size, gocv.NewScalar(mean, mean, mean, 0), false, false)
	defer blob.Close()

	data := bytesToFloat32(blob.ToBytes())
	h, w := int64(size.Y), int64(size.X)

	t := Tensor{Shape: []int64{1, 3, h, w}, Data: data}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	if layout == LayoutNHWC {
		t = t.toNHWC()
	}
	return t, nil
}

// toNHWC transposes a 1x3xHxW tensor into 1xHxWx3
func (t Tensor) toNHWC() Tensor {
	c, h, w := int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	out := make([]float32, len(t.Data))
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[(y*w+x)*c+ch] = t.Data[(ch*h+y)*w+x]
			}
		}
	}
	return Tensor{Shape: []int64{1, int64(h), int64(w), int64(c)}, Data: out}
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}

// Sigmoid maps a logit into [0,1]
func Sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}
