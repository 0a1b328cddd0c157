package vision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelsLoadsLazilyAndMemoizes(t *testing.T) {
	var calls atomic.Int32
	models := NewModels(func(ctx context.Context, name string) error {
		calls.Add(1)
		return nil
	})

	assert.False(t, models.IsLoaded("yolov8n"))

	require.NoError(t, models.Ensure(context.Background(), "yolov8n"))
	require.NoError(t, models.Ensure(context.Background(), "yolov8n"))

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, models.IsLoaded("yolov8n"))
}

func TestModelsConcurrentEnsureLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	models := NewModels(func(ctx context.Context, name string) error {
		calls.Add(1)
		<-started
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = models.Ensure(context.Background(), "yolov8s")
		}()
	}
	close(started)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, models.IsLoaded("yolov8s"))
}

func TestModelsFailedLoadCanRetry(t *testing.T) {
	var calls atomic.Int32
	models := NewModels(func(ctx context.Context, name string) error {
		if calls.Add(1) == 1 {
			return errors.New("service down")
		}
		return nil
	})

	err := models.Ensure(context.Background(), "yolov8n")
	require.Error(t, err)
	assert.False(t, models.IsLoaded("yolov8n"))

	require.NoError(t, models.Ensure(context.Background(), "yolov8n"))
	assert.True(t, models.IsLoaded("yolov8n"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestModelsRejectsEmptyName(t *testing.T) {
	models := NewModels(func(ctx context.Context, name string) error { return nil })
	assert.Error(t, models.Ensure(context.Background(), ""))
}

func TestModelsLoadedNamesSorted(t *testing.T) {
	models := NewModels(func(ctx context.Context, name string) error { return nil })

	require.NoError(t, models.Ensure(context.Background(), "yolov8s"))
	require.NoError(t, models.Ensure(context.Background(), "yolov8n"))

	assert.Equal(t, []string{"yolov8n", "yolov8s"}, models.LoadedNames())
}
