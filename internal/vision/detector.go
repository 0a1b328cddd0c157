package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"visionpanel/internal/logger"
)

// InferenceRequest represents a request to the inference service.
type InferenceRequest struct {
	Image               string   `json:"image"` // Base64-encoded JPEG image
	Model               string   `json:"model"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// BoundingBox represents a detected object's bounding box.
type BoundingBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"` // 0.0 to 1.0
	ClassName  string  `json:"class_name"`
}

// InferenceResponse represents the response from the inference service.
type InferenceResponse struct {
	BoundingBoxes   []BoundingBox `json:"bounding_boxes"`
	InferenceTimeMs float64       `json:"inference_time_ms"`
	DetectionCount  int           `json:"detection_count"`
}

// Detector runs object detection on JPEG frames.
type Detector interface {
	Detect(ctx context.Context, frame []byte, model string, threshold float64) (*InferenceResponse, error)
	LoadModel(ctx context.Context, model string) error
}

// Client is an HTTP client for the external inference service.
type Client struct {
	serviceURL string
	httpClient *http.Client
	logger     *logger.Logger
}

// ClientConfig contains configuration for the inference client.
type ClientConfig struct {
	ServiceURL string
	Timeout    time.Duration
}

// NewClient creates a new inference service client.
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		serviceURL: config.ServiceURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log,
	}
}

// Detect performs inference on a single frame with the named model.
func (c *Client) Detect(ctx context.Context, frame []byte, model string, threshold float64) (*InferenceResponse, error) {
	// The threshold always accompanies the request, including an explicit
	// zero; otherwise the service would silently substitute its own default.
	req := InferenceRequest{
		Image:               base64.StdEncoding.EncodeToString(frame),
		Model:               model,
		ConfidenceThreshold: &threshold,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, string(body))
	}

	var result InferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// LoadModel asks the inference service to load the named model.
func (c *Client) LoadModel(ctx context.Context, model string) error {
	url := fmt.Sprintf("%s/api/v1/models/%s/load", c.serviceURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("model load request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("inference service returned %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("Model loaded", "model", model)
	return nil
}

// Ensure Client implements Detector
var _ Detector = (*Client)(nil)
