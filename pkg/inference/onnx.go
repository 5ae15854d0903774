// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/wildsight/antler/pkg/config"
	antlererrors "github.com/wildsight/antler/pkg/errors"
)

// rawConfidenceFloor discards anchor noise inside the engine; the operator
// confidence threshold is applied downstream by the detect worker.
const rawConfidenceFloor = 0.01

// Embedder input normalisation, (pixel - mean) / std.
const (
	embedMean = float32(127.5)
	embedStd  = float32(127.5)
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

// ensureRuntime initialises the process-wide ONNX Runtime environment once.
func ensureRuntime() error {
	ortOnce.Do(func() {
		if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxEngine is one in-process ONNX Runtime session serving a single model
// role. Sessions support concurrent Run; the registry guard bounds how many
// run at once.
type onnxEngine struct {
	role      string
	session   *ort.DynamicAdvancedSession
	inputSize int
	classes   []string
	dim       int
	version   string
}

// NewOnnxEngine loads the model file configured for the role. Any load
// failure is fatal: a worker must not start against a missing model.
func NewOnnxEngine(role string, settings config.InferenceSettings) (Engine, error) {
	if err := ensureRuntime(); err != nil {
		return nil, errors.Wrapf(antlererrors.ErrFatal, "initialize onnxruntime: %v", err)
	}

	path, err := modelPathForRole(role, settings)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(antlererrors.ErrFatal, "model file for role %s: %v", role, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer opts.Destroy()

	// YOLO-family exports name their tensors images/output0; the embedder
	// exports use input/output.
	inputName, outputName := "images", "output0"
	if role != RoleDetector {
		inputName, outputName = "input", "output"
	}
	session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, errors.Wrapf(antlererrors.ErrFatal, "load %s session from %s: %v", role, path, err)
	}

	eng := &onnxEngine{
		role:    role,
		session: session,
		version: settings.GetEmbeddingVersion(),
	}
	if role == RoleDetector {
		eng.inputSize = settings.GetDetectorInputSize()
		eng.classes = settings.GetDetectorClasses()
	} else {
		eng.inputSize = settings.GetEmbedderInputSize()
		eng.dim = settings.GetEmbeddingDim()
	}
	return eng, nil
}

func modelPathForRole(role string, settings config.InferenceSettings) (string, error) {
	var path string
	switch role {
	case RoleDetector:
		path = settings.DetectorModelPath
	case RoleEmbedder:
		path = settings.EmbedderModelPath
	default:
		for i, p := range settings.AuxEmbedderPaths {
			if role == AuxRole(i) {
				path = p
				break
			}
		}
	}
	if path == "" {
		return "", errors.Wrapf(antlererrors.ErrFatal, "no model path configured for role %q", role)
	}
	return path, nil
}

func (e *onnxEngine) Detect(ctx context.Context, imageBytes []byte) ([]Detection, error) {
	if e.role != RoleDetector {
		return nil, errors.Errorf("model role %s does not detect", e.role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := decodeImage(imageBytes)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	data, box := letterboxCHW(img, e.inputSize)
	out, shape, err := e.run(data, e.inputSize, e.inputSize)
	if err != nil {
		return nil, err
	}
	return decodeDetections(out, shape, e.classes, box, bounds.Dx(), bounds.Dy())
}

func (e *onnxEngine) Embed(ctx context.Context, cropBytes []byte) ([]float32, error) {
	if e.role == RoleDetector {
		return nil, errors.Errorf("model role %s does not embed", e.role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := decodeImage(cropBytes)
	if err != nil {
		return nil, err
	}

	data := resizeCHW(img, e.inputSize, e.inputSize, embedMean, embedStd)
	out, _, err := e.run(data, e.inputSize, e.inputSize)
	if err != nil {
		return nil, err
	}
	if len(out) != e.dim {
		return nil, errors.Wrapf(antlererrors.ErrFatal,
			"embedder %s produced %d dims, configured for %d", e.role, len(out), e.dim)
	}
	return out, nil
}

// run executes the session on a 1×3×h×w tensor and returns the first
// output's data (copied) and shape.
func (e *onnxEngine) run(data []float32, h, w int) ([]float32, []int64, error) {
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(h), int64(w)), data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create input tensor")
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, nil, errors.Wrapf(err, "run %s session", e.role)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, errors.Errorf("%s session returned %T, want float32 tensor", e.role, outputs[0])
	}
	defer out.Destroy()

	result := append([]float32(nil), out.GetData()...)
	shape := []int64(out.GetShape())
	return result, append([]int64(nil), shape...), nil
}

// decodeDetections unpacks a YOLO-style [1, 4+nc, n] output tensor: rows
// are cx, cy, w, h then one score row per class; columns are anchors.
func decodeDetections(out []float32, shape []int64, classes []string, box letterbox, srcW, srcH int) ([]Detection, error) {
	if len(shape) != 3 || shape[0] != 1 || shape[1] < 5 {
		return nil, errors.Errorf("unexpected detector output shape %v", shape)
	}
	rows := int(shape[1])
	n := int(shape[2])
	numClasses := rows - 4
	if len(out) < rows*n {
		return nil, errors.Errorf("detector output holds %d values, shape %v needs %d", len(out), shape, rows*n)
	}

	var dets []Detection
	for i := 0; i < n; i++ {
		bestClass := -1
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			if s := out[(4+c)*n+i]; s > bestScore {
				bestScore = s
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore < rawConfidenceFloor {
			continue
		}

		cx := float64(out[0*n+i])
		cy := float64(out[1*n+i])
		w := float64(out[2*n+i])
		h := float64(out[3*n+i])
		rect := box.toSource(cx, cy, w, h, srcW, srcH)
		if rect.Area() == 0 {
			continue
		}

		class := "other"
		if bestClass < len(classes) {
			class = classes[bestClass]
		}
		dets = append(dets, Detection{Box: rect, Confidence: float64(bestScore), Class: class})
	}
	return dets, nil
}

func (e *onnxEngine) Dim() int {
	return e.dim
}

func (e *onnxEngine) Version() string {
	return e.version
}

func (e *onnxEngine) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
