package detector

import "github.com/dudu/facemesh/internal/geom"

// Detection is a candidate face in image coordinates
type Detection struct {
	Box       geom.Box
	Keypoints []geom.Point // eyes, nose, mouth, ears (BlazeFace only)
	Score     float32      // [0,1]
}

// Best returns the highest scoring detection
func Best(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	return best, true
}
