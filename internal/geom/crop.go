package geom

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// CutFromAndResize extracts the box region from img and resamples it to
// width x height. Parts of the box outside the image are filled by clamping
// to the nearest edge pixel; coordinates never wrap. The caller owns the
// returned Mat.
func (b Box) CutFromAndResize(img gocv.Mat, width, height int) (gocv.Mat, error) {
	if err := b.Validate(); err != nil {
		return gocv.Mat{}, err
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return gocv.Mat{}, fmt.Errorf("%w: zero-area crop %v", ErrInvalidGeometry, b)
	}
	if width <= 0 || height <= 0 {
		return gocv.Mat{}, fmt.Errorf("%w: target size %dx%d", ErrInvalidGeometry, width, height)
	}
	if img.Empty() {
		return gocv.Mat{}, fmt.Errorf("cannot crop an empty image")
	}

	M := b.cropTransform(width, height)
	defer M.Close()

	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &dst, M, image.Pt(width, height),
		gocv.InterpolationLinear, gocv.BorderReplicate, color.RGBA{})

	return dst, nil
}

// cropTransform maps the box onto a width x height patch
func (b Box) cropTransform(width, height int) gocv.Mat {
	sx := float64(width) / float64(b.Width())
	sy := float64(height) / float64(b.Height())

	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	M.SetDoubleAt(0, 0, sx)
	M.SetDoubleAt(0, 1, 0)
	M.SetDoubleAt(0, 2, -float64(b.TopLeft.X)*sx)
	M.SetDoubleAt(1, 0, 0)
	M.SetDoubleAt(1, 1, sy)
	M.SetDoubleAt(1, 2, -float64(b.TopLeft.Y)*sy)

	return M
}
