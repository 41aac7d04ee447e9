package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/bmharper/ringbuffer"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/annotate"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/ppe"
)

// Number of recent frame outcomes kept per session, for the stats API
const outcomeHistorySize = 256

// A Session is one stream of frames with its own alarm debounce state.
// Each camera connection or uploaded video gets its own session, so a
// violation on one stream cannot hold another stream's alarm open.
// Sessions are not safe for concurrent use; the stream that owns a session
// feeds it frames in order.
type Session struct {
	ID      int64
	monitor *Monitor

	machineLock sync.Mutex
	machine     *alarm.Machine

	outcomes     ringbuffer.RingP[FrameOutcome]
	lastFrameAt  time.Time
	totalFrames  int64
	failedFrames int64
}

// ProcessOptions control per-frame work that not every caller needs.
type ProcessOptions struct {
	Annotate bool // render boxes and banner into FrameResult.Annotated
}

// FrameOutcome is the compact per-frame record kept in the session history.
type FrameOutcome struct {
	Frame     int64     `json:"frame"`
	Time      time.Time `json:"time"`
	Persons   int       `json:"persons"`
	Violation bool      `json:"violation"`
	Missing   []int     `json:"missing,omitempty"` // union of missing gear classes across persons
}

// FrameResult is everything the pipeline produced for one frame.
type FrameResult struct {
	Frame       int64              `json:"frame"`
	Records     []ppe.PersonRecord `json:"persons"`
	Violation   bool               `json:"violation"`
	AlarmActive bool               `json:"alarmActive"`
	Signal      *alarm.Signal      `json:"signal,omitempty"`
	Annotated   *cimg.Image        `json:"-"`
}

// StartSession creates a session that uses the monitor's current alarm thresholds.
func (m *Monitor) StartSession() *Session {
	return m.startSession(m.Policy().AlarmOptions())
}

// StartOneShotSession creates a session for single-image requests, where
// debouncing makes no sense: one violation frame raises, one clear frame clears.
func (m *Monitor) StartOneShotSession() *Session {
	return m.startSession(alarm.Options{TriggerFrames: 1, ClearFrames: 1})
}

func (m *Monitor) startSession(opts alarm.Options) *Session {
	s := &Session{
		ID:       m.nextSessionID.Add(1),
		monitor:  m,
		machine:  alarm.NewMachine(opts),
		outcomes: ringbuffer.NewRingP[FrameOutcome](outcomeHistorySize),
	}
	m.sessionsLock.Lock()
	m.sessions[s.ID] = s
	m.sessionsLock.Unlock()
	m.Metrics.ActiveSessions.Add(1)
	return s
}

// Close removes the session from the monitor. If the session's alarm is still
// raised, an alarm-off signal is emitted, so sinks are never left ringing
// after the stream that triggered them has gone away.
func (s *Session) Close() {
	m := s.monitor
	m.sessionsLock.Lock()
	_, present := m.sessions[s.ID]
	delete(m.sessions, s.ID)
	m.sessionsLock.Unlock()
	if !present {
		return
	}
	m.Metrics.ActiveSessions.Add(^uint64(0))

	s.machineLock.Lock()
	active := s.machine.Active()
	frame := s.totalFrames
	s.machineLock.Unlock()
	if active {
		signal := &alarm.Signal{Kind: alarm.SignalOff, Frame: frame, At: time.Now()}
		m.publishSignal(s, signal, nil)
	}
}

func (s *Session) setAlarmOptions(opts alarm.Options) {
	s.machineLock.Lock()
	s.machine.SetOptions(opts)
	s.machineLock.Unlock()
}

// AlarmActive reports whether this session's alarm is currently raised.
func (s *Session) AlarmActive() bool {
	s.machineLock.Lock()
	defer s.machineLock.Unlock()
	return s.machine.Active()
}

// ProcessFrame runs one frame through the full pipeline.
// A detector failure returns an error and leaves the alarm state untouched;
// the caller skips the frame and carries on with the next one.
func (s *Session) ProcessFrame(ctx context.Context, frame *cimg.Image, opts ProcessOptions) (*FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := s.monitor
	policy := m.Policy()

	start := time.Now()
	img := nn.WholeImage(frame.NChan(), frame.Pixels, frame.Width, frame.Height)
	objects, err := nn.TiledInference(m.detector, img, policy.DetectionParams())
	if err != nil {
		s.failedFrames++
		m.Metrics.FramesFailed.Add(1)
		m.logDetectError(err)
		return nil, fmt.Errorf("frame %v: %w", s.totalFrames, err)
	}
	m.Metrics.observeNNLatency(time.Since(start))

	objects = m.classMap.Translate(objects)
	records := ppe.Analyze(objects, policy.CompliancePolicy())

	violation := false
	missing := []int{}
	seenMissing := map[int]bool{}
	for _, rec := range records {
		if rec.Verdict == ppe.VerdictViolation {
			violation = true
			for _, class := range rec.Missing {
				if !seenMissing[class] {
					seenMissing[class] = true
					missing = append(missing, class)
				}
			}
		}
	}

	s.machineLock.Lock()
	signal := s.machine.Observe(violation)
	active := s.machine.Active()
	s.machineLock.Unlock()

	frameIdx := s.totalFrames
	s.totalFrames++
	s.lastFrameAt = time.Now()
	s.outcomes.Add(FrameOutcome{
		Frame:     frameIdx,
		Time:      s.lastFrameAt,
		Persons:   len(records),
		Violation: violation,
		Missing:   missing,
	})

	m.Metrics.countFrame(records, violation)
	if signal != nil {
		m.publishSignal(s, signal, missing)
	}

	result := &FrameResult{
		Frame:       frameIdx,
		Records:     records,
		Violation:   violation,
		AlarmActive: active,
		Signal:      signal,
	}
	if opts.Annotate {
		annotated, err := annotate.Draw(frame, records, annotate.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("frame %v: annotation failed: %w", frameIdx, err)
		}
		result.Annotated = annotated
	}
	return result, nil
}

// RecentOutcomes returns the per-frame history of the session, oldest first.
func (s *Session) RecentOutcomes() []FrameOutcome {
	out := make([]FrameOutcome, 0, s.outcomes.Len())
	for i := 0; i < s.outcomes.Len(); i++ {
		out = append(out, s.outcomes.Peek(i))
	}
	return out
}

// publishSignal delivers an alarm transition to the sinks, the event log,
// and any registered watchers.
func (m *Monitor) publishSignal(s *Session, signal *alarm.Signal, missing []int) {
	if signal.Kind == alarm.SignalOn {
		m.Metrics.AlarmsRaised.Add(1)
		m.Metrics.AlarmActive.Store(1)
		m.Log.Infof("Session %v: alarm raised at frame %v", s.ID, signal.Frame)
	} else {
		m.Metrics.AlarmActive.Store(uint64(m.countActiveAlarms()))
		m.Log.Infof("Session %v: alarm cleared at frame %v", s.ID, signal.Frame)
	}
	if err := m.configDB.AddAlarmEvent(signal, missing); err != nil {
		m.Log.Warnf("Failed to record alarm event: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, sink := range m.sinks {
		if err := sink.Deliver(ctx, signal); err != nil {
			m.Log.Warnf("Alarm sink %v failed: %v", sink.Name(), err)
		}
	}
	m.sendToAlarmWatchers(signal)
}

func (m *Monitor) countActiveAlarms() int {
	m.sessionsLock.Lock()
	defer m.sessionsLock.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.AlarmActive() {
			n++
		}
	}
	return n
}
