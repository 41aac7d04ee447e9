package monitor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/gen"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/pkg/ppe"
	"github.com/ppecam/ppecam/server/configdb"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, detector nn.ObjectDetector, sinks ...alarm.Sink) *Monitor {
	db, err := configdb.NewConfigDB(logs.NewTestingLog(t), filepath.Join(t.TempDir(), "config.sqlite"))
	require.NoError(t, err)
	m, err := NewMonitor(logs.NewTestingLog(t), detector, db, sinks)
	require.NoError(t, err)
	t.Cleanup(func() {
		m.Close()
		db.Close()
	})
	return m
}

func testFrame() *cimg.Image {
	return cimg.NewImage(640, 480, cimg.PixelFormatRGB)
}

func det(class int, confidence float32, box nn.Rect) nn.ObjectDetection {
	return nn.ObjectDetection{Class: class, Confidence: confidence, Box: box}
}

// Model class indices of the fake detector
const (
	fakePerson = 0
	fakeHelmet = 1
	fakeVest   = 2
	fakeMask   = 3
	fakeCone   = 4
)

func personWithGear(gear ...int) []nn.ObjectDetection {
	objects := []nn.ObjectDetection{
		det(fakePerson, 0.9, nn.Rect{X: 100, Y: 50, Width: 200, Height: 400}),
	}
	for _, g := range gear {
		var box nn.Rect
		switch g {
		case fakeHelmet:
			box = nn.Rect{X: 150, Y: 50, Width: 80, Height: 60}
		case fakeVest:
			box = nn.Rect{X: 130, Y: 180, Width: 140, Height: 150}
		case fakeMask:
			box = nn.Rect{X: 160, Y: 110, Width: 60, Height: 40}
		}
		objects = append(objects, det(g, 0.8, box))
	}
	return objects
}

func TestCompliantFrame(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest, fakeMask), nil)
	m := newTestMonitor(t, detector)
	session := m.StartSession()
	defer session.Close()

	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Equal(t, ppe.VerdictCompliant, result.Records[0].Verdict)
	require.False(t, result.Violation)
	require.False(t, result.AlarmActive)
	require.Nil(t, result.Signal)
	require.Equal(t, uint64(1), m.Metrics.FramesProcessed.Load())
}

func TestViolationRaisesAlarm(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest), nil) // no mask
	sink := &recordingSink{}
	m := newTestMonitor(t, detector, sink)
	session := m.StartSession()
	defer session.Close()

	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Equal(t, ppe.VerdictViolation, result.Records[0].Verdict)
	require.Equal(t, []int{nn.ClassMask}, result.Records[0].Missing)
	require.True(t, result.AlarmActive)
	require.NotNil(t, result.Signal)
	require.Equal(t, alarm.SignalOn, result.Signal.Kind)
	require.Equal(t, []alarm.SignalKind{alarm.SignalOn}, sink.kinds())

	// The transition lands in the event log
	events, err := m.configDB.RecentAlarmEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "alarm-on", events[0].Kind)
	require.Equal(t, "mask", events[0].Missing)
}

func TestZeroPersonsIsCompliant(t *testing.T) {
	detector := NewFakeDetector()
	// Gear and a cone, but nobody wearing them
	detector.Push([]nn.ObjectDetection{
		det(fakeHelmet, 0.8, nn.Rect{X: 10, Y: 10, Width: 50, Height: 40}),
		det(fakeCone, 0.9, nn.Rect{X: 300, Y: 300, Width: 40, Height: 80}),
	}, nil)
	m := newTestMonitor(t, detector)
	session := m.StartSession()
	defer session.Close()

	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.Empty(t, result.Records)
	require.False(t, result.Violation)
	require.False(t, result.AlarmActive)
}

func TestAlarmDebounce(t *testing.T) {
	detector := NewFakeDetector()
	violation := personWithGear(fakeHelmet) // missing vest and mask
	compliant := personWithGear(fakeHelmet, fakeVest, fakeMask)
	for _, objects := range [][]nn.ObjectDetection{
		violation, violation, // 2 violations raise
		compliant,            // clear run starts
		violation,            // interrupted, but one violation does not re-trigger counters oddly
		compliant, compliant, // 2 clears clear
	} {
		detector.Push(objects, nil)
	}
	m := newTestMonitor(t, detector)
	policy := m.Policy()
	policy.TriggerFrames = 2
	policy.ClearFrames = 2
	require.NoError(t, m.SetPolicy(policy))

	session := m.StartSession()
	defer session.Close()

	signals := []alarm.SignalKind{}
	for i := 0; i < 6; i++ {
		result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
		require.NoError(t, err)
		if result.Signal != nil {
			signals = append(signals, result.Signal.Kind)
		}
	}
	require.Equal(t, []alarm.SignalKind{alarm.SignalOn, alarm.SignalOff}, signals)
	require.False(t, session.AlarmActive())
}

func TestDetectorFailureSkipsFrame(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest), nil) // violation, alarm on
	detector.Push(nil, nn.ErrDetectionFailed)
	detector.Push(personWithGear(fakeHelmet, fakeVest), nil)
	m := newTestMonitor(t, detector)
	session := m.StartSession()
	defer session.Close()

	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.AlarmActive)

	_, err = session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.ErrorIs(t, err, nn.ErrDetectionFailed)
	// A failed frame leaves the alarm untouched
	require.True(t, session.AlarmActive())
	require.Equal(t, uint64(1), m.Metrics.FramesFailed.Load())

	result, err = session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.AlarmActive)
	require.Nil(t, result.Signal)
}

func TestSessionCloseClearsAlarm(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(), nil) // missing everything
	sink := &recordingSink{}
	m := newTestMonitor(t, detector, sink)
	session := m.StartSession()

	_, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.True(t, session.AlarmActive())

	session.Close()
	require.Equal(t, []alarm.SignalKind{alarm.SignalOn, alarm.SignalOff}, sink.kinds())

	// Closing twice is harmless
	session.Close()
	require.Equal(t, []alarm.SignalKind{alarm.SignalOn, alarm.SignalOff}, sink.kinds())
}

func TestAlarmWatcher(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(), nil)
	detector.Push(personWithGear(fakeHelmet, fakeVest, fakeMask), nil)
	m := newTestMonitor(t, detector)
	policy := m.Policy()
	policy.ClearFrames = 1
	require.NoError(t, m.SetPolicy(policy))

	watcher := m.AddAlarmWatcher()
	defer m.RemoveAlarmWatcher(watcher)

	session := m.StartSession()
	defer session.Close()
	_, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	_, err = session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)

	signals := gen.DrainChannelIntoSlice(watcher)
	require.Len(t, signals, 2)
	require.Equal(t, alarm.SignalOn, signals[0].Kind)
	require.Equal(t, alarm.SignalOff, signals[1].Kind)
}

func TestOneShotSession(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest), nil)
	m := newTestMonitor(t, detector)

	// The monitor's policy may debounce over many frames, but a one-shot
	// session reports immediately.
	policy := m.Policy()
	policy.TriggerFrames = 30
	require.NoError(t, m.SetPolicy(policy))

	session := m.StartOneShotSession()
	defer session.Close()
	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.True(t, result.AlarmActive)
}

func TestAnnotatedOutput(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest, fakeMask), nil)
	m := newTestMonitor(t, detector)
	session := m.StartSession()
	defer session.Close()

	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{Annotate: true})
	require.NoError(t, err)
	require.NotNil(t, result.Annotated)
	require.Equal(t, 640, result.Annotated.Width)
	require.Equal(t, 480, result.Annotated.Height)
}

func TestCancelledContext(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest, fakeMask), nil)
	m := newTestMonitor(t, detector)
	session := m.StartSession()
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.ProcessFrame(ctx, testFrame(), ProcessOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicySubset(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet), nil)
	m := newTestMonitor(t, detector)
	policy := m.Policy()
	policy.RequiredGear = "helmet"
	require.NoError(t, m.SetPolicy(policy))

	session := m.StartSession()
	defer session.Close()
	result, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, ppe.VerdictCompliant, result.Records[0].Verdict)
	require.False(t, result.Violation)
}

func TestRecentOutcomes(t *testing.T) {
	detector := NewFakeDetector()
	detector.Push(personWithGear(fakeHelmet, fakeVest, fakeMask), nil)
	detector.Push(personWithGear(fakeHelmet, fakeVest), nil)
	m := newTestMonitor(t, detector)
	session := m.StartSession()
	defer session.Close()

	_, err := session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)
	_, err = session.ProcessFrame(context.Background(), testFrame(), ProcessOptions{})
	require.NoError(t, err)

	outcomes := session.RecentOutcomes()
	require.Len(t, outcomes, 2)
	require.False(t, outcomes[0].Violation)
	require.True(t, outcomes[1].Violation)
	require.Equal(t, []int{nn.ClassMask}, outcomes[1].Missing)
	require.Equal(t, int64(1), outcomes[1].Frame)
}
