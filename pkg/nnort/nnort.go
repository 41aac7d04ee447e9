package nnort

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyclopcam/logs"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ppecam/ppecam/pkg/nn"
)

// Package nnort is an ONNX Runtime backend for nn.ObjectDetector.
// It runs YOLOv8-family detection models exported to ONNX.

var initOnce sync.Once
var initErr error

// Detector implements nn.ObjectDetector on top of an ONNX Runtime session.
// The session's input/output tensors are allocated once and reused, so
// DetectObjects serializes internally. That is fine for our workload:
// sessions queue frames anyway, and ONNX Runtime parallelizes within a run.
type Detector struct {
	config  *nn.ModelConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	anchors int

	runLock sync.Mutex
}

// LoadModel opens a YOLOv8 ONNX model. modelDir must contain
// <modelName>.onnx and <modelName>.json (the nn.ModelConfig).
func LoadModel(logger logs.Log, modelDir, modelName string) (*Detector, error) {
	onnxPath := filepath.Join(modelDir, modelName+".onnx")
	configPath := filepath.Join(modelDir, modelName+".json")
	if _, err := os.Stat(onnxPath); err != nil {
		return nil, fmt.Errorf("model file missing at %v: %w", onnxPath, err)
	}
	config, err := nn.LoadModelConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load model config: %w", err)
	}
	if config.Width <= 0 || config.Height <= 0 || len(config.Classes) == 0 {
		return nil, fmt.Errorf("invalid model config %v", configPath)
	}
	if config.Name == "" {
		config.Name = modelName
	}

	initOnce.Do(func() {
		if libPath := resolveSharedLibraryPath(); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if !ort.IsInitialized() {
			initErr = ort.InitializeEnvironment()
		}
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", initErr)
	}

	// YOLOv8 heads run at strides 8, 16 and 32
	anchors := (config.Width/8)*(config.Height/8) + (config.Width/16)*(config.Height/16) + (config.Width/32)*(config.Height/32)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(config.Height), int64(config.Width)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+len(config.Classes)), int64(anchors)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		onnxPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	logger.Infof("Loaded model %v (%vx%v, %v classes)", modelName, config.Width, config.Height, len(config.Classes))

	return &Detector{
		config:  config,
		session: session,
		input:   input,
		output:  output,
		anchors: anchors,
	}, nil
}

func (d *Detector) Close() {
	d.runLock.Lock()
	defer d.runLock.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
}

func (d *Detector) Config() *nn.ModelConfig {
	return d.config
}

func (d *Detector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	if img.NChan != 3 {
		return nil, fmt.Errorf("%w: expected 3 channel RGB input", nn.ErrDetectionFailed)
	}
	if img.CropWidth <= 0 || img.CropHeight <= 0 {
		return nil, fmt.Errorf("%w: empty image", nn.ErrDetectionFailed)
	}
	probability := params.ProbabilityThreshold
	if probability <= 0 {
		probability = nn.DefaultProbabilityThreshold
	}
	nmsIoU := params.NmsIouThreshold
	if nmsIoU <= 0 {
		nmsIoU = nn.DefaultNmsIouThreshold
	}

	d.runLock.Lock()
	defer d.runLock.Unlock()
	if d.session == nil {
		return nil, fmt.Errorf("%w: detector is closed", nn.ErrDetectionFailed)
	}

	fillInputTensor(d.input.GetData(), img, d.config.Width, d.config.Height)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v", nn.ErrDetectionFailed, err)
	}

	objects := decodeYolov8(d.output.GetData(), d.anchors, len(d.config.Classes), probability)
	scaleToImage(objects, d.config.Width, d.config.Height, img.CropWidth, img.CropHeight)
	if !params.Unclipped {
		clip := nn.Rect{X: 0, Y: 0, Width: img.CropWidth, Height: img.CropHeight}
		for i := range objects {
			objects[i].Box = objects[i].Box.Intersection(clip)
		}
	}
	return nn.NonMaxSuppression(objects, nmsIoU), nil
}

// resolveSharedLibraryPath finds libonnxruntime. The env var wins; otherwise
// we try the usual install locations, and fall back to the system loader.
func resolveSharedLibraryPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	candidates := []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		"/usr/lib/aarch64-linux-gnu/libonnxruntime.so",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
