package detector

import "sort"

// nms performs Non-Maximum Suppression on detected faces
func nms(faces []Detection, iouThreshold float32) []Detection {
	if len(faces) == 0 {
		return faces
	}

	// Sort by score (descending)
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	keep := make([]bool, len(faces))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(faces); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if keep[j] && faces[i].Box.IoU(faces[j].Box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Detection, 0, len(faces))
	for i, face := range faces {
		if keep[i] {
			result = append(result, face)
		}
	}

	return result
}
