package nn

import "sort"

// NonMaxSuppression removes overlapping detections of the same class,
// keeping the highest-confidence box of each overlapping group.
// The result is sorted by descending confidence, with ties broken by
// box position, so output order is deterministic for identical input sets.
func NonMaxSuppression(objects []ObjectDetection, iouThreshold float32) []ObjectDetection {
	if iouThreshold <= 0 {
		iouThreshold = DefaultNmsIouThreshold
	}
	order := make([]int, len(objects))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		oa := &objects[order[a]]
		ob := &objects[order[b]]
		if oa.Confidence != ob.Confidence {
			return oa.Confidence > ob.Confidence
		}
		if oa.Box.X != ob.Box.X {
			return oa.Box.X < ob.Box.X
		}
		return oa.Box.Y < ob.Box.Y
	})

	keep := []ObjectDetection{}
	suppressed := make([]bool, len(objects))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		winner := objects[i]
		keep = append(keep, winner)
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if objects[j].Class == winner.Class && winner.Box.IOU(objects[j].Box) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}
