package configdb

import (
	"strings"

	"github.com/cyclopcam/dbh"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/ppe"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Policy is the persisted compliance policy. There is exactly one row,
// created with defaults on first startup.
type Policy struct {
	BaseModel
	RequiredGear  string  `json:"requiredGear"`  // Comma-separated canonical gear names, eg "helmet,vest,mask"
	MinConfidence float32 `json:"minConfidence"` // Detection confidence threshold (0..1)
	NmsIou        float32 `json:"nmsIou"`        // Non-max suppression IoU threshold (0..1)
	MinOverlap    float32 `json:"minOverlap"`    // Gear-inside-person containment threshold (0..1)
	TriggerFrames int     `json:"triggerFrames"` // Consecutive violation frames before the alarm raises
	ClearFrames   int     `json:"clearFrames"`   // Consecutive compliant frames before the alarm clears
}

type Variable struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

// AlarmEvent is one alarm transition, recorded for the event history API.
type AlarmEvent struct {
	BaseModel
	Time    dbh.IntTime `json:"time"`
	Kind    string      `json:"kind"`                       // "alarm-on" or "alarm-off"
	Frame   int64       `json:"frame"`                      // Frame index within the session that transitioned
	Missing string      `json:"missing" gorm:"default:null"` // Comma-separated gear names missing at transition time
}

func (AlarmEvent) TableName() string {
	return "alarm_event"
}

// DefaultPolicy returns the policy that a fresh system starts with.
func DefaultPolicy() *Policy {
	required := []string{}
	for _, class := range ppe.DefaultRequiredGear {
		required = append(required, nn.PPEClasses[class])
	}
	return &Policy{
		RequiredGear:  strings.Join(required, ","),
		MinConfidence: nn.DefaultProbabilityThreshold,
		NmsIou:        nn.DefaultNmsIouThreshold,
		MinOverlap:    0,
		TriggerFrames: alarm.DefaultTriggerFrames,
		ClearFrames:   alarm.DefaultClearFrames,
	}
}

// RequiredClasses parses RequiredGear into canonical class indices.
// Unrecognized names are reported so a bad API write can be rejected.
func (p *Policy) RequiredClasses() ([]int, []string) {
	classes := []int{}
	bad := []string{}
	for _, name := range strings.Split(p.RequiredGear, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		class := nn.CanonicalClass(name)
		if class < 0 || class == nn.ClassPerson {
			bad = append(bad, name)
			continue
		}
		classes = append(classes, class)
	}
	return classes, bad
}

// CompliancePolicy converts the persisted record into the policy used by the pipeline.
func (p *Policy) CompliancePolicy() ppe.Policy {
	required, _ := p.RequiredClasses()
	return ppe.Policy{
		Required:   required,
		MinOverlap: p.MinOverlap,
	}
}

// DetectionParams converts the persisted record into detector parameters.
func (p *Policy) DetectionParams() *nn.DetectionParams {
	params := nn.NewDetectionParams()
	if p.MinConfidence > 0 {
		params.ProbabilityThreshold = p.MinConfidence
	}
	if p.NmsIou > 0 {
		params.NmsIouThreshold = p.NmsIou
	}
	return params
}

// AlarmOptions converts the persisted record into alarm debounce options.
func (p *Policy) AlarmOptions() alarm.Options {
	return alarm.Options{
		TriggerFrames: p.TriggerFrames,
		ClearFrames:   p.ClearFrames,
	}
}
