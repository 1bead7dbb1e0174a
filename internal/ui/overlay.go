package ui

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/geom"
)

var (
	meshColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	boxColor  = color.RGBA{R: 255, G: 128, B: 0, A: 255}
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Overlay describes what to draw for one frame
type Overlay struct {
	Points     []geom.Point3
	Box        geom.Box
	Confidence float32
	Mode       string
}

// Draw paints mesh points, the face box and a status line onto an 8-bit frame
func (o Overlay) Draw(frame *gocv.Mat) {
	for _, p := range o.Points {
		gocv.Circle(frame, image.Pt(int(p.X), int(p.Y)), 1, meshColor, -1)
	}

	if o.Box.Validate() == nil && o.Box.Area() > 0 {
		gocv.Rectangle(frame, o.Box.Rect(), boxColor, 1)
	}

	status := fmt.Sprintf("%s conf=%.2f pts=%d", o.Mode, o.Confidence, len(o.Points))
	gocv.PutText(frame, status, image.Pt(10, 60),
		gocv.FontHersheyPlain, 1.5, textColor, 2)
}
