package ppe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ppecam/ppecam/pkg/nn"
)

func TestEvaluateAllPresent(t *testing.T) {
	policy := DefaultPolicy()
	gear := map[int]nn.ObjectDetection{
		nn.ClassHelmet: gearDet(nn.ClassHelmet, 0, 0, 10, 10, 0.9),
		nn.ClassVest:   gearDet(nn.ClassVest, 0, 20, 10, 10, 0.9),
		nn.ClassMask:   gearDet(nn.ClassMask, 0, 40, 10, 10, 0.9),
	}
	verdict, missing := Evaluate(gear, &policy)
	require.Equal(t, VerdictCompliant, verdict)
	require.Empty(t, missing)
}

func TestEvaluateMissingItems(t *testing.T) {
	policy := DefaultPolicy()
	gear := map[int]nn.ObjectDetection{
		nn.ClassHelmet: gearDet(nn.ClassHelmet, 0, 0, 10, 10, 0.9),
	}
	verdict, missing := Evaluate(gear, &policy)
	require.Equal(t, VerdictViolation, verdict)
	require.Equal(t, []int{nn.ClassVest, nn.ClassMask}, missing)

	// Empty gear set: everything required is missing
	verdict, missing = Evaluate(map[int]nn.ObjectDetection{}, &policy)
	require.Equal(t, VerdictViolation, verdict)
	require.Equal(t, []int{nn.ClassHelmet, nn.ClassVest, nn.ClassMask}, missing)
}

func TestEvaluateConfigurableSubset(t *testing.T) {
	// A site that only mandates helmets
	policy := Policy{Required: []int{nn.ClassHelmet}}
	gear := map[int]nn.ObjectDetection{
		nn.ClassHelmet: gearDet(nn.ClassHelmet, 0, 0, 10, 10, 0.9),
	}
	verdict, missing := Evaluate(gear, &policy)
	require.Equal(t, VerdictCompliant, verdict)
	require.Empty(t, missing)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	policy := DefaultPolicy()
	gear := map[int]nn.ObjectDetection{
		nn.ClassVest: gearDet(nn.ClassVest, 0, 20, 10, 10, 0.9),
	}
	v1, m1 := Evaluate(gear, &policy)
	v2, m2 := Evaluate(gear, &policy)
	require.Equal(t, v1, v2)
	require.Equal(t, m1, m2)
}

func TestAnalyzeEndToEnd(t *testing.T) {
	// Scenario: one person wearing helmet and vest, but no mask
	objects := []nn.ObjectDetection{
		person(100, 50, 200, 500, 0.95),
		gearDet(nn.ClassHelmet, 150, 60, 80, 60, 0.9),
		gearDet(nn.ClassVest, 130, 200, 140, 150, 0.85),
	}
	records := Analyze(objects, DefaultPolicy())
	require.Len(t, records, 1)
	require.Equal(t, VerdictViolation, records[0].Verdict)
	require.Equal(t, []int{nn.ClassMask}, records[0].Missing)
	require.Equal(t, []string{"mask"}, records[0].MissingNames())

	// Same detections analyzed twice yield identical verdicts
	again := Analyze(objects, DefaultPolicy())
	require.Equal(t, records, again)
}
