// Package monitor runs the PPE pipeline: it takes decoded frames through
// detection, person/gear association, compliance evaluation and alarm
// debouncing, and publishes alarm transitions to sinks and watchers.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/ppe"
	"github.com/ppecam/ppecam/server/configdb"
)

type Monitor struct {
	Log      logs.Log
	Metrics  *Metrics
	detector nn.ObjectDetector
	classMap *nn.ClassMap
	configDB *configdb.ConfigDB
	sinks    []alarm.Sink

	policyLock sync.RWMutex
	policy     *configdb.Policy

	sessionsLock  sync.Mutex
	sessions      map[int64]*Session
	nextSessionID atomic.Int64

	alarmWatchersLock sync.RWMutex
	alarmWatchers     []chan *alarm.Signal

	lastDetectErrAt time.Time
	detectErrLock   sync.Mutex
}

// NewMonitor wraps a detector. The monitor takes ownership of the detector
// and the sinks, and closes them when it is closed.
func NewMonitor(logger logs.Log, detector nn.ObjectDetector, configDB *configdb.ConfigDB, sinks []alarm.Sink) (*Monitor, error) {
	policy, err := configDB.GetPolicy()
	if err != nil {
		return nil, err
	}
	m := &Monitor{
		Log:      logger,
		Metrics:  NewMetrics(),
		detector: detector,
		classMap: nn.NewClassMap(detector.Config().Classes),
		configDB: configDB,
		sinks:    sinks,
		policy:   policy,
		sessions: map[int64]*Session{},
	}
	for _, class := range ppe.GearTypes {
		if !m.classMap.HasClass(class) {
			logger.Warnf("Model %v has no class that maps to %v. Policies requiring it will always report a violation.",
				detector.Config().Name, nn.PPEClasses[class])
		}
	}
	return m, nil
}

// Close shuts down all sessions, the sinks, and the detector.
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	m.sessionsLock.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessionsLock.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			m.Log.Warnf("Error closing alarm sink %v: %v", sink.Name(), err)
		}
	}
	m.detector.Close()
	m.Log.Infof("Monitor is closed")
}

// Policy returns the current policy snapshot.
func (m *Monitor) Policy() *configdb.Policy {
	m.policyLock.RLock()
	defer m.policyLock.RUnlock()
	copied := *m.policy
	return &copied
}

// SetPolicy persists a new policy and applies it to frames processed from now on.
// Alarm debounce counters of existing sessions are preserved.
func (m *Monitor) SetPolicy(policy *configdb.Policy) error {
	if err := m.configDB.SetPolicy(policy); err != nil {
		return err
	}
	m.policyLock.Lock()
	m.policy = policy
	m.policyLock.Unlock()
	m.sessionsLock.Lock()
	for _, s := range m.sessions {
		s.setAlarmOptions(policy.AlarmOptions())
	}
	m.sessionsLock.Unlock()
	m.Log.Infof("Policy updated (required: %v)", policy.RequiredGear)
	return nil
}

// ModelConfig returns the configuration of the loaded detector model.
func (m *Monitor) ModelConfig() *nn.ModelConfig {
	return m.detector.Config()
}

// ClassMap returns the model-to-canonical class translation table.
func (m *Monitor) ClassMap() *nn.ClassMap {
	return m.classMap
}

// logDetectError throttles detector error logging, so a hard model failure
// doesn't flood the logs at frame rate.
func (m *Monitor) logDetectError(err error) {
	m.detectErrLock.Lock()
	defer m.detectErrLock.Unlock()
	if time.Since(m.lastDetectErrAt) > 15*time.Second {
		m.Log.Errorf("Error detecting objects: %v", err)
		m.lastDetectErrAt = time.Now()
	}
}
