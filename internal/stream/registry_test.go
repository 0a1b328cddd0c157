package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionpanel/internal/logger"
)

func newTestRegistry(processor *fakeProcessor) *Registry {
	return NewRegistry(processor, testSessionConfig(), logger.NewNopLogger())
}

func TestStartSessionReplacesPrevious(t *testing.T) {
	processor := &fakeProcessor{}
	registry := newTestRegistry(processor)
	defer registry.Shutdown()

	require.NoError(t, registry.StartSession("user-1", "cam-10", "rtsp://a", ProcessingConfig{}))
	first := registry.Session("user-1")
	require.NotNil(t, first)

	require.NoError(t, registry.StartSession("user-1", "cam-11", "rtsp://b", ProcessingConfig{}))
	second := registry.Session("user-1")
	require.NotNil(t, second)
	require.NotSame(t, first, second)

	// The first producer is fully joined before the second starts.
	assert.Equal(t, StateStopped, first.State())
	assert.True(t, processor.capture(0).isClosed())

	processor.capture(1).push([]byte("frame"))
	assert.Equal(t, []byte("frame"), readFrame(t, second))
}

func TestStartSessionOpenFailure(t *testing.T) {
	processor := &fakeProcessor{openErr: errors.New("unreachable")}
	registry := newTestRegistry(processor)

	err := registry.StartSession("user-1", "cam-10", "rtsp://dead", ProcessingConfig{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Nil(t, registry.Session("user-1"))
}

func TestUpdateResourceIgnoresStaleID(t *testing.T) {
	processor := &fakeProcessor{}
	registry := newTestRegistry(processor)
	defer registry.Shutdown()

	require.NoError(t, registry.StartSession("user-1", "cam-10", "rtsp://a", ProcessingConfig{}))

	assert.Equal(t, "cam-10", registry.BoundResource("user-1"))

	// Wrong resource id: the caller's view is stale, nothing changes.
	require.NoError(t, registry.UpdateResource("user-1", "cam-99", "rtsp://hijack"))
	assert.Equal(t, 1, processor.captureCount())
	assert.Equal(t, "rtsp://a", registry.Session("user-1").Locator())

	// Matching resource id: the source is swapped.
	require.NoError(t, registry.UpdateResource("user-1", "cam-10", "rtsp://b"))
	assert.Equal(t, 2, processor.captureCount())
	assert.Equal(t, "rtsp://b", registry.Session("user-1").Locator())
}

func TestUpdateProcessingConfigWithoutSession(t *testing.T) {
	registry := newTestRegistry(&fakeProcessor{})

	model := "m1"
	threshold := 0.5
	registry.UpdateProcessingConfig("nobody", &model, &threshold) // no panic, no-op
	registry.UpdateResource("nobody", "cam-1", "rtsp://a")
}

func TestFramesRequiresActiveSession(t *testing.T) {
	registry := newTestRegistry(&fakeProcessor{})

	_, err := registry.Frames("nobody")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestFramesWrapsPayloadInEnvelope(t *testing.T) {
	processor := &fakeProcessor{}
	registry := newTestRegistry(processor)
	defer registry.Shutdown()

	require.NoError(t, registry.StartSession("user-1", "cam-10", "rtsp://a", ProcessingConfig{}))
	frames, err := registry.Frames("user-1")
	require.NoError(t, err)

	processor.capture(0).push([]byte("jpegdata"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, err := frames.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\n\r\njpegdata\r\n", string(payload))
}

func TestFramesEndsWhenSessionStops(t *testing.T) {
	processor := &fakeProcessor{}
	registry := newTestRegistry(processor)

	require.NoError(t, registry.StartSession("user-1", "cam-10", "rtsp://a", ProcessingConfig{}))
	frames, err := registry.Frames("user-1")
	require.NoError(t, err)

	registry.StopSession("user-1")

	_, err = frames.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStopSessionForIgnoresReplacedSession(t *testing.T) {
	processor := &fakeProcessor{}
	registry := newTestRegistry(processor)
	defer registry.Shutdown()

	// A delivery loop holds the frame stream of the first session while a
	// second request replaces it.
	require.NoError(t, registry.StartSession("user-1", "cam-10", "rtsp://a", ProcessingConfig{}))
	staleFrames, err := registry.Frames("user-1")
	require.NoError(t, err)

	require.NoError(t, registry.StartSession("user-1", "cam-11", "rtsp://b", ProcessingConfig{}))
	successor := registry.Session("user-1")
	require.NotNil(t, successor)

	// The stale loop's cleanup must leave the successor running.
	registry.StopSessionFor("user-1", staleFrames)
	assert.Same(t, successor, registry.Session("user-1"))
	assert.NotEqual(t, StateStopped, successor.State())
	assert.Equal(t, "cam-11", registry.BoundResource("user-1"))

	// The successor's own loop still tears it down.
	successorFrames, err := registry.Frames("user-1")
	require.NoError(t, err)
	registry.StopSessionFor("user-1", successorFrames)
	assert.Nil(t, registry.Session("user-1"))
	assert.Equal(t, StateStopped, successor.State())
}

func TestStopSessionWithoutSession(t *testing.T) {
	registry := newTestRegistry(&fakeProcessor{})
	registry.StopSession("nobody") // no-op
}

func TestShutdownStopsAllSessions(t *testing.T) {
	processor := &fakeProcessor{}
	registry := newTestRegistry(processor)

	require.NoError(t, registry.StartSession("user-1", "cam-10", "rtsp://a", ProcessingConfig{}))
	require.NoError(t, registry.StartSession("user-2", "cam-20", "rtsp://b", ProcessingConfig{}))

	first := registry.Session("user-1")
	second := registry.Session("user-2")

	registry.Shutdown()

	assert.Equal(t, StateStopped, first.State())
	assert.Equal(t, StateStopped, second.State())
	assert.Nil(t, registry.Session("user-1"))
	assert.Nil(t, registry.Session("user-2"))
}
