package alarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// observe runs the machine over a string of frames, where 'V' is a frame
// with at least one violation and 'C' is an all-clear frame. It returns
// the signals emitted, in order, keyed by the frame index that caused them.
func observe(m *Machine, frames string) []Signal {
	signals := []Signal{}
	for _, f := range frames {
		if sig := m.Observe(f == 'V'); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

func TestImmediateTrigger(t *testing.T) {
	m := NewMachine(Options{TriggerFrames: 1, ClearFrames: 3})
	require.Equal(t, StateIdle, m.State())

	signals := observe(m, "V")
	require.Len(t, signals, 1)
	require.Equal(t, SignalOn, signals[0].Kind)
	require.EqualValues(t, 0, signals[0].Frame)
	require.True(t, m.Active())
}

func TestDebounceClear(t *testing.T) {
	// The sequence from hell: alarm turns on at the first V, and a single
	// interleaved C must not turn it off when ClearFrames is 3.
	m := NewMachine(Options{TriggerFrames: 1, ClearFrames: 3})

	signals := observe(m, "VVCVVV")
	require.Len(t, signals, 1)
	require.Equal(t, SignalOn, signals[0].Kind)
	require.True(t, m.Active())

	// Two clears: still alarming
	signals = observe(m, "CC")
	require.Empty(t, signals)
	require.True(t, m.Active())

	// Third consecutive clear: alarm off, exactly one signal
	signals = observe(m, "C")
	require.Len(t, signals, 1)
	require.Equal(t, SignalOff, signals[0].Kind)
	require.False(t, m.Active())
}

func TestInterruptedClearRunStartsOver(t *testing.T) {
	m := NewMachine(Options{TriggerFrames: 1, ClearFrames: 3})
	observe(m, "V")
	// CCVCC: the V resets the clear run, so we never reach 3 consecutive clears
	signals := observe(m, "CCVCC")
	require.Empty(t, signals)
	require.True(t, m.Active())
}

func TestTriggerThreshold(t *testing.T) {
	// Requiring 3 consecutive violation frames suppresses single-frame blips
	m := NewMachine(Options{TriggerFrames: 3, ClearFrames: 2})

	signals := observe(m, "VVCVV")
	require.Empty(t, signals)
	require.False(t, m.Active())

	signals = observe(m, "V")
	require.Len(t, signals, 1)
	require.Equal(t, SignalOn, signals[0].Kind)
	require.EqualValues(t, 5, signals[0].Frame)
}

func TestSignalOncePerTransition(t *testing.T) {
	m := NewMachine(Options{TriggerFrames: 1, ClearFrames: 2})

	// 10 violation frames in a row: exactly one alarm-on
	signals := observe(m, "VVVVVVVVVV")
	require.Len(t, signals, 1)

	// 10 clear frames: exactly one alarm-off
	signals = observe(m, "CCCCCCCCCC")
	require.Len(t, signals, 1)
	require.Equal(t, SignalOff, signals[0].Kind)
}

func TestReset(t *testing.T) {
	m := NewMachine(DefaultOptions())
	observe(m, "V")
	require.True(t, m.Active())

	m.Reset()
	require.False(t, m.Active())

	// A reset machine behaves like a new one: no lingering counters
	signals := observe(m, "V")
	require.Len(t, signals, 1)
	require.Equal(t, SignalOn, signals[0].Kind)
	require.EqualValues(t, 0, signals[0].Frame)
}

func TestDefaultOptionClamping(t *testing.T) {
	m := NewMachine(Options{TriggerFrames: 0, ClearFrames: -5})
	require.Equal(t, DefaultTriggerFrames, m.opts.TriggerFrames)
	require.Equal(t, DefaultClearFrames, m.opts.ClearFrames)
}
