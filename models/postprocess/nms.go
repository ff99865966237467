package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-vision-detect/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
}

// NMSSort performs per-class sorted Non-Maximum Suppression.
//
// Candidates whose probabilities are all zero are removed first. Then, for
// every class, candidates are visited in descending order of that class's
// probability and any later candidate overlapping a kept one by more than the
// threshold has its probability for that class zeroed. A candidate can
// therefore survive for one class and be suppressed for another. Surviving
// candidates keep their input order.
//
// Arguments:
//   - raws: Candidates with probability vectors of equal length. Probs are modified in place.
//   - config: NMS configuration.
//
// Returns:
//   - The candidates that still carry a non-zero probability.
func NMSSort(raws []RawDetection, config *NMSConfig) []RawDetection {
	kept := make([]RawDetection, 0, len(raws))
	for _, r := range raws {
		if anyPositive(r.Probs) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return kept
	}

	boxes := make([]images.Box, len(kept))
	for i := range kept {
		boxes[i] = kept[i].Box()
	}

	order := make([]int, len(kept))
	classes := len(kept[0].Probs)
	for k := 0; k < classes; k++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return prob(kept[order[a]], k) > prob(kept[order[b]], k)
		})

		for i, oi := range order {
			if prob(kept[oi], k) == 0 {
				continue
			}
			for _, oj := range order[i+1:] {
				if prob(kept[oj], k) == 0 {
					continue
				}
				if images.CalculateIoU(boxes[oi], boxes[oj]) > config.IoUThreshold {
					kept[oj].Probs[k] = 0
				}
			}
		}
	}

	out := kept[:0]
	for _, r := range kept {
		if anyPositive(r.Probs) {
			out = append(out, r)
		}
	}
	return out
}

func prob(r RawDetection, k int) float32 {
	if k >= len(r.Probs) {
		return 0
	}
	return r.Probs[k]
}

func anyPositive(probs []float32) bool {
	for _, p := range probs {
		if p > 0 {
			return true
		}
	}
	return false
}
