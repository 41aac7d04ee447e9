package ppe

import (
	flatbush "github.com/bmharper/flatbush-go"

	"github.com/ppecam/ppecam/pkg/nn"
)

// Associate partitions one frame's detections into per-person gear sets.
//
// Each gear detection is assigned to the person whose box contains the
// largest fraction of the gear box, provided that fraction exceeds
// minOverlap (or is simply positive, when minOverlap is zero). Gear with
// no qualifying person is dropped. A person with no gear gets an empty
// gear set.
//
// The result is deterministic for a given input: ties on overlap are
// broken by input order of the person detections, and when two gear
// detections of the same type land on the same person, the higher
// confidence one wins (ties again broken by input order).
func Associate(objects []nn.ObjectDetection, minOverlap float32) []PersonRecord {
	persons := make([]nn.ObjectDetection, 0, len(objects))
	gear := make([]nn.ObjectDetection, 0, len(objects))
	for _, obj := range objects {
		if obj.Class == nn.ClassPerson {
			persons = append(persons, obj)
		} else {
			gear = append(gear, obj)
		}
	}
	if len(persons) == 0 {
		return nil
	}

	records := make([]PersonRecord, len(persons))
	for i, p := range persons {
		records[i] = PersonRecord{
			Person: p,
			Gear:   map[int]nn.ObjectDetection{},
		}
	}

	// Spatial index over the person boxes. Frame detection counts are small,
	// but crowded scenes (scaffolding full of workers) are exactly where this
	// pipeline earns its keep, so avoid the O(persons * gear) scan.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(persons))
	for _, p := range persons {
		fb.Add(int32(p.Box.X), int32(p.Box.Y), int32(p.Box.X2()), int32(p.Box.Y2()))
	}
	fb.Finish()

	candidates := []int{}
	for _, g := range gear {
		candidates = fb.SearchFast(int32(g.Box.X), int32(g.Box.Y), int32(g.Box.X2()), int32(g.Box.Y2()), candidates)
		bestPerson := -1
		bestOverlap := float32(0)
		for _, pi := range candidates {
			overlap := g.Box.Containment(persons[pi].Box)
			if overlap <= 0 || overlap < minOverlap {
				continue
			}
			// Strictly-greater keeps the earliest qualifying person on ties,
			// but SearchFast does not promise an ordering, so enforce one.
			if overlap > bestOverlap || (overlap == bestOverlap && bestPerson != -1 && pi < bestPerson) {
				bestOverlap = overlap
				bestPerson = pi
			}
		}
		if bestPerson == -1 {
			// Unassociated gear (eg a helmet lying on the ground)
			continue
		}
		existing, ok := records[bestPerson].Gear[g.Class]
		if !ok || g.Confidence > existing.Confidence {
			records[bestPerson].Gear[g.Class] = g
		}
	}

	return records
}
