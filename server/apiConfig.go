package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/ppe"
	"github.com/ppecam/ppecam/pkg/www"
	"github.com/ppecam/ppecam/server/configdb"
)

func (s *Server) httpGetConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.monitor.Policy())
}

// httpSetConfig replaces the policy. The new policy applies to frames
// processed from now on, including frames of sessions that are already open.
func (s *Server) httpSetConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	policy := configdb.Policy{}
	www.ReadJSON(w, r, &policy, 1024*1024)
	www.CheckClient(configdb.ValidatePolicy(&policy))
	www.Check(s.monitor.SetPolicy(&policy))
	www.SendJSON(w, s.monitor.Policy())
}

type modelInfoJSON struct {
	Name         string   `json:"name"`
	Architecture string   `json:"architecture"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Classes      []string `json:"classes"`    // raw model vocabulary
	Monitored    []string `json:"monitored"`  // canonical classes the model can detect
	Unmappable   []string `json:"unmappable"` // canonical classes with no model class
}

func (s *Server) httpModelInfo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	config := s.monitor.ModelConfig()
	info := modelInfoJSON{
		Name:         config.Name,
		Architecture: config.Architecture,
		Width:        config.Width,
		Height:       config.Height,
		Classes:      config.Classes,
		Monitored:    []string{},
		Unmappable:   []string{},
	}
	classMap := s.monitor.ClassMap()
	for class, name := range nn.PPEClasses {
		if classMap.HasClass(class) {
			info.Monitored = append(info.Monitored, name)
		} else {
			info.Unmappable = append(info.Unmappable, name)
		}
	}
	www.SendJSON(w, info)
}

func (s *Server) httpEvents(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit := www.QueryInt(r, "limit")
	events, err := s.configDB.RecentAlarmEvents(limit)
	www.Check(err)
	www.SendJSON(w, events)
}

type statsJSON struct {
	FramesProcessed uint64            `json:"framesProcessed"`
	FramesFailed    uint64            `json:"framesFailed"`
	PersonsSeen     uint64            `json:"personsSeen"`
	ViolationFrames uint64            `json:"violationFrames"`
	AlarmsRaised    uint64            `json:"alarmsRaised"`
	ActiveSessions  uint64            `json:"activeSessions"`
	AlarmActive     bool              `json:"alarmActive"`
	NNLatencyMS     float64           `json:"nnLatencyMS"`
	MissingGear     map[string]uint64 `json:"missingGear"` // person-frames missing each gear type
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	m := s.monitor.Metrics
	stats := statsJSON{
		FramesProcessed: m.FramesProcessed.Load(),
		FramesFailed:    m.FramesFailed.Load(),
		PersonsSeen:     m.PersonsSeen.Load(),
		ViolationFrames: m.ViolationFrames.Load(),
		AlarmsRaised:    m.AlarmsRaised.Load(),
		ActiveSessions:  m.ActiveSessions.Load(),
		AlarmActive:     m.AlarmActive.Load() != 0,
		NNLatencyMS:     m.NNLatency().Seconds() * 1000,
		MissingGear:     map[string]uint64{},
	}
	for _, class := range ppe.GearTypes {
		stats.MissingGear[nn.PPEClasses[class]] = m.MissingGear[class].Load()
	}
	www.SendJSON(w, stats)
}
