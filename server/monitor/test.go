package monitor

import (
	"context"
	"sync"

	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/nn"
)

// FakeDetector plays back a scripted sequence of detection results.
// The script is consumed one entry per DetectObjects call; when the script
// is exhausted, the last entry repeats.
type FakeDetector struct {
	lock   sync.Mutex
	script []fakeFrame
	pos    int
	config nn.ModelConfig
}

type fakeFrame struct {
	objects []nn.ObjectDetection
	err     error
}

// The model vocabulary deliberately uses the raw names that PPE models ship
// with, so tests run through the same class translation as production.
func NewFakeDetector() *FakeDetector {
	return &FakeDetector{
		config: nn.ModelConfig{
			Name:         "fake-ppe",
			Architecture: "yolov8",
			Width:        640,
			Height:       640,
			Classes:      []string{"Person", "Hardhat", "Safety Vest", "Mask", "Safety Cone"},
		},
	}
}

func (f *FakeDetector) Push(objects []nn.ObjectDetection, err error) {
	f.lock.Lock()
	f.script = append(f.script, fakeFrame{objects: objects, err: err})
	f.lock.Unlock()
}

func (f *FakeDetector) Close() {}

func (f *FakeDetector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.script) == 0 {
		return nil, nil
	}
	frame := f.script[f.pos]
	if f.pos < len(f.script)-1 {
		f.pos++
	}
	return frame.objects, frame.err
}

func (f *FakeDetector) Config() *nn.ModelConfig {
	return &f.config
}

// recordingSink collects delivered signals.
type recordingSink struct {
	lock    sync.Mutex
	signals []alarm.SignalKind
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(ctx context.Context, signal *alarm.Signal) error {
	r.lock.Lock()
	r.signals = append(r.signals, signal.Kind)
	r.lock.Unlock()
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) kinds() []alarm.SignalKind {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]alarm.SignalKind{}, r.signals...)
}
