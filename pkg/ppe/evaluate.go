package ppe

import (
	"sort"

	"github.com/ppecam/ppecam/pkg/nn"
)

// Evaluate applies the policy to a person's gear set.
// Returns VerdictViolation and the sorted list of missing gear classes
// if any required item is absent. Pure function, no hidden state.
func Evaluate(gear map[int]nn.ObjectDetection, policy *Policy) (Verdict, []int) {
	missing := []int{}
	for _, required := range policy.Required {
		if _, ok := gear[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) == 0 {
		return VerdictCompliant, nil
	}
	sort.Ints(missing)
	return VerdictViolation, missing
}
