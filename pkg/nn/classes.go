package nn

import "strings"

// The canonical class vocabulary of the PPE pipeline.
// Detector models are trained with their own class names (eg "Hardhat",
// "Safety Vest", "NO-Hardhat"), so we normalize model classes into this
// small vocabulary, and ignore everything else (cones, machinery, vehicles).
const (
	ClassPerson = 0
	ClassHelmet = 1
	ClassVest   = 2
	ClassMask   = 3
)

// PPEClasses are the canonical class names, indexed by ClassPerson etc.
var PPEClasses = []string{
	"person",
	"helmet",
	"vest",
	"mask",
}

// modelClassAliases maps lowercased model class names to our canonical classes.
// The keys cover the vocabularies of the common construction-safety YOLO models.
var modelClassAliases = map[string]int{
	"person":      ClassPerson,
	"worker":      ClassPerson,
	"helmet":      ClassHelmet,
	"hardhat":     ClassHelmet,
	"hard hat":    ClassHelmet,
	"vest":        ClassVest,
	"safety vest": ClassVest,
	"mask":        ClassMask,
	"face mask":   ClassMask,
}

// CanonicalClass maps a model class name to our canonical class index.
// Returns -1 for classes that the pipeline does not care about
// (including the "NO-Hardhat" style negative classes, which we derive
// ourselves from the absence of gear).
func CanonicalClass(modelClass string) int {
	name := strings.ToLower(strings.TrimSpace(modelClass))
	if idx, ok := modelClassAliases[name]; ok {
		return idx
	}
	return -1
}

// ClassMap translates detector output classes to canonical classes.
// Built once per model, by matching the model's class list against our aliases.
type ClassMap struct {
	modelToCanonical []int
}

// NewClassMap builds a translation table from a model's class list.
func NewClassMap(modelClasses []string) *ClassMap {
	m := &ClassMap{
		modelToCanonical: make([]int, len(modelClasses)),
	}
	for i, name := range modelClasses {
		m.modelToCanonical[i] = CanonicalClass(name)
	}
	return m
}

// Translate rewrites the Class of each detection into the canonical vocabulary,
// dropping detections of classes we don't monitor.
func (m *ClassMap) Translate(objects []ObjectDetection) []ObjectDetection {
	out := make([]ObjectDetection, 0, len(objects))
	for _, obj := range objects {
		if obj.Class < 0 || obj.Class >= len(m.modelToCanonical) {
			continue
		}
		canonical := m.modelToCanonical[obj.Class]
		if canonical < 0 {
			continue
		}
		obj.Class = canonical
		out = append(out, obj)
	}
	return out
}

// HasClass returns true if the model vocabulary contains a class that maps to 'canonical'.
func (m *ClassMap) HasClass(canonical int) bool {
	for _, c := range m.modelToCanonical {
		if c == canonical {
			return true
		}
	}
	return false
}
