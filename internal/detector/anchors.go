package detector

// anchor is an SSD prior in normalized [0,1] input coordinates
type anchor struct {
	X, Y float32
}

// anchorLayer describes one feature map of the BlazeFace SSD head
type anchorLayer struct {
	stride  int
	perCell int
}

// blazeFaceLayers is the front-camera model layout: strides 8,16,16,16 with
// the three stride-16 layers merged into 6 anchors per cell.
var blazeFaceLayers = []anchorLayer{
	{stride: 8, perCell: 2},
	{stride: 16, perCell: 6},
}

// generateAnchors builds fixed-size anchors centered on each feature map cell
func generateAnchors(inputSize int, layers []anchorLayer) []anchor {
	var anchors []anchor
	for _, l := range layers {
		fm := (inputSize + l.stride - 1) / l.stride
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				cx := (float32(x) + 0.5) / float32(fm)
				cy := (float32(y) + 0.5) / float32(fm)
				for a := 0; a < l.perCell; a++ {
					anchors = append(anchors, anchor{X: cx, Y: cy})
				}
			}
		}
	}
	return anchors
}
