package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	"github.com/dudu/facemesh/internal/geom"
)

func TestOverlayDraw(t *testing.T) {
	frame := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	Overlay{
		Points:     []geom.Point3{{X: 140, Y: 150}},
		Box:        geom.Box{TopLeft: geom.Point{X: 100, Y: 100}, BottomRight: geom.Point{X: 180, Y: 180}},
		Confidence: 0.97,
		Mode:       "track",
	}.Draw(&frame)

	point := frame.GetVecbAt(150, 140)
	assert.Equal(t, uint8(255), point[1])

	edge := frame.GetVecbAt(140, 100)
	assert.Equal(t, []uint8{0, 128, 255}, []uint8{edge[0], edge[1], edge[2]})

	inside := frame.GetVecbAt(120, 120)
	assert.Equal(t, uint8(0), inside[1])
}

func TestOverlayDraw_SkipsInvalidBox(t *testing.T) {
	frame := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8UC3)
	defer frame.Close()

	Overlay{Mode: "no_face"}.Draw(&frame)

	corner := frame.GetVecbAt(0, 0)
	assert.Equal(t, uint8(0), corner[2])
}
