package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionpanel/internal/logger"
)

func TestClientDetect(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/inference", r.URL.Path)

		var req InferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, base64.StdEncoding.EncodeToString(frame), req.Image)
		assert.Equal(t, "yolov8n", req.Model)
		require.NotNil(t, req.ConfidenceThreshold)
		assert.Equal(t, 0.5, *req.ConfidenceThreshold)

		json.NewEncoder(w).Encode(InferenceResponse{
			BoundingBoxes: []BoundingBox{
				{X1: 1, Y1: 2, X2: 3, Y2: 4, Confidence: 0.9, ClassName: "person"},
			},
			DetectionCount: 1,
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{ServiceURL: server.URL}, logger.NewNopLogger())

	resp, err := client.Detect(context.Background(), frame, "yolov8n", 0.5)
	require.NoError(t, err)
	require.Len(t, resp.BoundingBoxes, 1)
	assert.Equal(t, "person", resp.BoundingBoxes[0].ClassName)
}

func TestClientDetectSendsZeroThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req InferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// An explicit zero must reach the service rather than letting its
		// own default apply.
		require.NotNil(t, req.ConfidenceThreshold)
		assert.Equal(t, 0.0, *req.ConfidenceThreshold)

		json.NewEncoder(w).Encode(InferenceResponse{})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{ServiceURL: server.URL}, logger.NewNopLogger())

	_, err := client.Detect(context.Background(), []byte{0x00}, "yolov8n", 0)
	require.NoError(t, err)
}

func TestClientDetectServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{ServiceURL: server.URL}, logger.NewNopLogger())

	_, err := client.Detect(context.Background(), []byte{0x00}, "missing", 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientLoadModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/models/yolov8s/load", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{ServiceURL: server.URL}, logger.NewNopLogger())

	assert.NoError(t, client.LoadModel(context.Background(), "yolov8s"))
}
