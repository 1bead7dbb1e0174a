package geom

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidGeometry is returned for boxes whose corners are out of order,
// non-finite, or too small to be cropped.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Point represents a 2D point in image coordinates
type Point struct {
	X, Y float32
}

// Point3 represents a 3D landmark. X and Y are image (or crop-local)
// coordinates, Z is depth on the same scale as X.
type Point3 struct {
	X, Y, Z float32
}

// Box is an axis-aligned rectangle. Derived boxes are always new values.
type Box struct {
	TopLeft     Point
	BottomRight Point
}

// NewBox creates a validated box from its corners
func NewBox(x1, y1, x2, y2 float32) (Box, error) {
	b := Box{TopLeft: Point{X: x1, Y: y1}, BottomRight: Point{X: x2, Y: y2}}
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

// Validate checks corner ordering and finiteness
func (b Box) Validate() error {
	for _, v := range []float32{b.TopLeft.X, b.TopLeft.Y, b.BottomRight.X, b.BottomRight.Y} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: non-finite coordinate in %v", ErrInvalidGeometry, b)
		}
	}
	if b.TopLeft.X > b.BottomRight.X || b.TopLeft.Y > b.BottomRight.Y {
		return fmt.Errorf("%w: top-left %v is past bottom-right %v", ErrInvalidGeometry, b.TopLeft, b.BottomRight)
	}
	return nil
}

// Width returns box width
func (b Box) Width() float32 {
	return b.BottomRight.X - b.TopLeft.X
}

// Height returns box height
func (b Box) Height() float32 {
	return b.BottomRight.Y - b.TopLeft.Y
}

// Size returns width and height
func (b Box) Size() (float32, float32) {
	return b.Width(), b.Height()
}

// Center returns box center point
func (b Box) Center() Point {
	return Point{
		X: (b.TopLeft.X + b.BottomRight.X) / 2,
		Y: (b.TopLeft.Y + b.BottomRight.Y) / 2,
	}
}

// Area returns box area
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Square expands the shorter side to match the longer one, keeping the center.
func (b Box) Square() Box {
	c := b.Center()
	half := max32(b.Width(), b.Height()) / 2
	return Box{
		TopLeft:     Point{X: c.X - half, Y: c.Y - half},
		BottomRight: Point{X: c.X + half, Y: c.Y + half},
	}
}

// Scale multiplies both corners by (sx, sy). Corners are reordered so a
// negative factor still yields a valid box.
func (b Box) Scale(sx, sy float32) Box {
	x1, x2 := b.TopLeft.X*sx, b.BottomRight.X*sx
	y1, y2 := b.TopLeft.Y*sy, b.BottomRight.Y*sy
	return Box{
		TopLeft:     Point{X: min32(x1, x2), Y: min32(y1, y2)},
		BottomRight: Point{X: max32(x1, x2), Y: max32(y1, y2)},
	}
}

// Enlarge grows the box around its center by factor (1.5 = 50% larger sides).
func (b Box) Enlarge(factor float32) Box {
	c := b.Center()
	halfW := b.Width() * factor / 2
	halfH := b.Height() * factor / 2
	return Box{
		TopLeft:     Point{X: c.X - halfW, Y: c.Y - halfH},
		BottomRight: Point{X: c.X + halfW, Y: c.Y + halfH},
	}
}

// Clamp limits the box to [0,width]x[0,height]
func (b Box) Clamp(width, height float32) Box {
	return Box{
		TopLeft: Point{
			X: clamp(b.TopLeft.X, 0, width),
			Y: clamp(b.TopLeft.Y, 0, height),
		},
		BottomRight: Point{
			X: clamp(b.BottomRight.X, 0, width),
			Y: clamp(b.BottomRight.Y, 0, height),
		},
	}
}

// IoU calculates Intersection over Union of two boxes
func (b Box) IoU(o Box) float32 {
	x1 := max32(b.TopLeft.X, o.TopLeft.X)
	y1 := max32(b.TopLeft.Y, o.TopLeft.Y)
	x2 := min32(b.BottomRight.X, o.BottomRight.X)
	y2 := min32(b.BottomRight.Y, o.BottomRight.Y)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// ToLocal maps an image point into crop-local coordinates, where the box
// spans [0,1] on both axes.
func (b Box) ToLocal(p Point) Point {
	return Point{
		X: (p.X - b.TopLeft.X) / b.Width(),
		Y: (p.Y - b.TopLeft.Y) / b.Height(),
	}
}

// FromLocal is the inverse of ToLocal.
func (b Box) FromLocal(p Point) Point {
	return Point{
		X: b.TopLeft.X + p.X*b.Width(),
		Y: b.TopLeft.Y + p.Y*b.Height(),
	}
}

// Rect returns the enclosing integer rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(float64(b.TopLeft.X))),
		int(math.Floor(float64(b.TopLeft.Y))),
		int(math.Ceil(float64(b.BottomRight.X))),
		int(math.Ceil(float64(b.BottomRight.Y))),
	)
}

// FromPoints computes the tight bounding box around points
func FromPoints(points []Point3) (Box, error) {
	if len(points) == 0 {
		return Box{}, fmt.Errorf("%w: no points", ErrInvalidGeometry)
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points[1:] {
		minX = min32(minX, p.X)
		minY = min32(minY, p.Y)
		maxX = max32(maxX, p.X)
		maxY = max32(maxY, p.Y)
	}
	return NewBox(minX, minY, maxX, maxY)
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
