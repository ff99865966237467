package postprocess

// Decode turns raw candidates into typed detections.
//
// For each candidate the probabilities are scanned in class index order and
// the FIRST class reaching the threshold is selected, with its probability as
// the score. This is not the highest scoring class. Candidates without any
// qualifying class are dropped. Boxes are converted from center form to
// top-left form.
//
// Arguments:
//   - raws: Candidates after non-maximum suppression.
//   - threshold: Minimum class probability.
//
// Returns:
//   - The detections, never nil.
//
// @example
// dets := Decode([]RawDetection{{CX: 200, CY: 140, W: 30, H: 40, Probs: probs}}, 0.5)
func Decode(raws []RawDetection, threshold float32) []Detection {
	detections := make([]Detection, 0, len(raws))
	for i := range raws {
		classID, score, ok := firstMatch(raws[i].Probs, threshold)
		if !ok {
			continue
		}
		detections = append(detections, Detection{
			Box:     raws[i].Box(),
			ClassID: classID,
			Score:   score,
		})
	}
	return detections
}

func firstMatch(probs []float32, threshold float32) (int, float32, bool) {
	for j, p := range probs {
		if p >= threshold {
			return j, p, true
		}
	}
	return -1, 0, false
}
