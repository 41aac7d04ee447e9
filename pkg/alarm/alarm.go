package alarm

import "time"

// Package alarm is the debounced violation alarm state machine.
// One Machine belongs to one session (one video, one camera socket),
// and sees exactly one Observe() call per processed frame, in frame order.

type State int

const (
	StateIdle State = iota
	StateAlarming
)

func (s State) String() string {
	if s == StateAlarming {
		return "alarming"
	}
	return "idle"
}

// SignalKind distinguishes the two discrete signals a Machine emits.
type SignalKind int

const (
	SignalOn SignalKind = iota
	SignalOff
)

func (k SignalKind) String() string {
	if k == SignalOn {
		return "alarm-on"
	}
	return "alarm-off"
}

// Signal is emitted exactly once per state transition, never once per frame.
type Signal struct {
	Kind  SignalKind `json:"kind"`
	Frame int64      `json:"frame"` // frame index (within the session) that caused the transition
	At    time.Time  `json:"at"`
}

// Options controls the debouncing behaviour of a Machine.
type Options struct {
	// TriggerFrames is the number of consecutive frames containing at least
	// one violation required to enter StateAlarming. Minimum (and default) 1.
	TriggerFrames int

	// ClearFrames is the number of consecutive all-clear frames required to
	// leave StateAlarming. Prevents alarm flapping on detector noise.
	ClearFrames int
}

const DefaultTriggerFrames = 1
const DefaultClearFrames = 10

func DefaultOptions() Options {
	return Options{
		TriggerFrames: DefaultTriggerFrames,
		ClearFrames:   DefaultClearFrames,
	}
}

// Machine tracks violation state across consecutive frames.
// It is not safe for concurrent use; a session owns its machine
// exclusively, which is what makes the counters meaningful.
type Machine struct {
	opts         Options
	state        State
	violationRun int   // consecutive frames with >= 1 violation
	clearRun     int   // consecutive frames with zero violations
	frames       int64 // total frames observed
	now          func() time.Time
}

func NewMachine(opts Options) *Machine {
	if opts.TriggerFrames < 1 {
		opts.TriggerFrames = DefaultTriggerFrames
	}
	if opts.ClearFrames < 1 {
		opts.ClearFrames = DefaultClearFrames
	}
	return &Machine{
		opts: opts,
		now:  time.Now,
	}
}

// SetOptions changes the debounce thresholds without resetting state or run counters.
func (m *Machine) SetOptions(opts Options) {
	if opts.TriggerFrames < 1 {
		opts.TriggerFrames = DefaultTriggerFrames
	}
	if opts.ClearFrames < 1 {
		opts.ClearFrames = DefaultClearFrames
	}
	m.opts = opts
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Active() bool {
	return m.state == StateAlarming
}

// Observe feeds one frame's outcome into the machine.
// Returns a Signal if this frame caused a state transition, otherwise nil.
func (m *Machine) Observe(violation bool) *Signal {
	m.frames++
	if violation {
		m.violationRun++
		m.clearRun = 0
		if m.state == StateIdle && m.violationRun >= m.opts.TriggerFrames {
			m.state = StateAlarming
			return &Signal{Kind: SignalOn, Frame: m.frames - 1, At: m.now()}
		}
	} else {
		m.clearRun++
		m.violationRun = 0
		if m.state == StateAlarming && m.clearRun >= m.opts.ClearFrames {
			m.state = StateIdle
			return &Signal{Kind: SignalOff, Frame: m.frames - 1, At: m.now()}
		}
	}
	return nil
}

// Reset returns the machine to its initial state without emitting signals.
// Sessions call this on start; an in-flight alarm is simply discarded.
func (m *Machine) Reset() {
	m.state = StateIdle
	m.violationRun = 0
	m.clearRun = 0
	m.frames = 0
}
