package vision

import (
	"context"
	"fmt"

	"visionpanel/internal/logger"
)

// FrameProcessor opens captures and annotates frames. Stream sessions depend
// on this interface only, so tests can substitute a fake.
type FrameProcessor interface {
	// Open starts a capture for the given source locator.
	Open(locator string) (Capture, error)
	// Annotate runs detection with the named model and draws the results on
	// the frame. An empty model name means pass the frame through untouched.
	Annotate(ctx context.Context, frame []byte, model string, threshold float64) ([]byte, error)
}

// Engine is the production FrameProcessor backed by ffmpeg capture and the
// external inference service.
type Engine struct {
	ffmpeg   *FFmpegWrapper
	detector Detector
	models   *Models
	logger   *logger.Logger
}

// NewEngine creates a frame processing engine.
func NewEngine(ffmpeg *FFmpegWrapper, detector Detector, models *Models, log *logger.Logger) *Engine {
	return &Engine{
		ffmpeg:   ffmpeg,
		detector: detector,
		models:   models,
		logger:   log,
	}
}

// Open starts an ffmpeg capture for the locator.
func (e *Engine) Open(locator string) (Capture, error) {
	return openCapture(e.ffmpeg, locator)
}

// Annotate ensures the model is loaded, runs inference, and draws the
// detections on the frame.
func (e *Engine) Annotate(ctx context.Context, frame []byte, model string, threshold float64) ([]byte, error) {
	if model == "" {
		return frame, nil
	}

	if err := e.models.Ensure(ctx, model); err != nil {
		return nil, fmt.Errorf("failed to ensure model %s: %w", model, err)
	}

	result, err := e.detector.Detect(ctx, frame, model, threshold)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	if len(result.BoundingBoxes) == 0 {
		return frame, nil
	}

	annotated, err := drawDetections(frame, result.BoundingBoxes)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Frame annotated",
		"model", model,
		"detections", result.DetectionCount,
		"inference_ms", result.InferenceTimeMs)

	return annotated, nil
}

var _ FrameProcessor = (*Engine)(nil)
