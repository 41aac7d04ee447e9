package ppe

import (
	"github.com/ppecam/ppecam/pkg/nn"
)

// Package ppe turns raw object detections into per-person compliance records.
// Everything in here is pure computation over geometric inputs, so that it
// can be tested without a detector or an image in sight.

// Verdict is the compliance outcome for one person in one frame.
type Verdict int

const (
	VerdictCompliant Verdict = iota
	VerdictViolation
)

func (v Verdict) String() string {
	if v == VerdictViolation {
		return "violation"
	}
	return "compliant"
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// GearTypes are the classes that count as safety gear (everything in the
// canonical vocabulary except person).
var GearTypes = []int{nn.ClassHelmet, nn.ClassVest, nn.ClassMask}

// DefaultRequiredGear is the default policy: helmet, vest and mask.
var DefaultRequiredGear = []int{nn.ClassHelmet, nn.ClassVest, nn.ClassMask}

// Policy is the PPE rule set applied to each person's gear set.
type Policy struct {
	// Required is the set of gear classes (nn.ClassHelmet etc) that every
	// person must wear. A person missing any of these is in violation.
	Required []int

	// MinOverlap is the minimum containment fraction of a gear box within a
	// person box for the gear to be associated with that person.
	// Zero means any positive overlap qualifies.
	MinOverlap float32
}

// DefaultPolicy requires helmet, vest and mask, with any positive overlap.
func DefaultPolicy() Policy {
	return Policy{
		Required:   append([]int{}, DefaultRequiredGear...),
		MinOverlap: 0,
	}
}

// Requires returns true if the policy requires the given gear class.
func (p *Policy) Requires(gearClass int) bool {
	for _, r := range p.Required {
		if r == gearClass {
			return true
		}
	}
	return false
}

// PersonRecord is one person detection with its associated gear,
// and the compliance verdict derived from it. Records live for one
// frame only; nothing in here survives to the next frame.
type PersonRecord struct {
	Person  nn.ObjectDetection         `json:"person"`
	Gear    map[int]nn.ObjectDetection `json:"gear"` // keyed by canonical gear class. At most one entry per class.
	Verdict Verdict                    `json:"verdict"`
	Missing []int                      `json:"missing"` // required gear classes absent from Gear, sorted ascending
}

// MissingNames returns the canonical names of the missing gear classes.
func (r *PersonRecord) MissingNames() []string {
	names := make([]string, 0, len(r.Missing))
	for _, class := range r.Missing {
		names = append(names, nn.PPEClasses[class])
	}
	return names
}

// Analyze runs association and evaluation over one frame's detections.
// This is the whole core pipeline short of the alarm machine: detections
// in, verdict-carrying person records out.
func Analyze(objects []nn.ObjectDetection, policy Policy) []PersonRecord {
	records := Associate(objects, policy.MinOverlap)
	for i := range records {
		records[i].Verdict, records[i].Missing = Evaluate(records[i].Gear, &policy)
	}
	return records
}
