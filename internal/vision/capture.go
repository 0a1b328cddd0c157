package vision

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Capture produces raw JPEG frames from one source. A capture is owned by
// exactly one stream session and is not safe for concurrent readers.
type Capture interface {
	// ReadFrame blocks until the next complete frame is available.
	ReadFrame() ([]byte, error)
	// Close releases the capture. Any blocked ReadFrame returns an error.
	Close() error
}

// ffmpegCapture reads frames from a long-lived ffmpeg image2pipe process.
type ffmpegCapture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc

	buf   []byte
	chunk []byte

	closeOnce sync.Once
}

// openCapture starts the ffmpeg process for the locator.
func openCapture(ffmpeg *FFmpegWrapper, locator string) (*ffmpegCapture, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := ffmpeg.BuildCommand(ctx, streamArgs(locator))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &ffmpegCapture{
		cmd:    cmd,
		stdout: stdout,
		cancel: cancel,
		buf:    make([]byte, 0, 1024*1024),
		chunk:  make([]byte, 8192),
	}, nil
}

// ReadFrame reads from the pipe until a complete JPEG frame is available.
func (c *ffmpegCapture) ReadFrame() ([]byte, error) {
	for {
		if frame := extractJPEGFrame(&c.buf); frame != nil {
			return frame, nil
		}

		n, err := c.stdout.Read(c.chunk)
		if n > 0 {
			c.buf = append(c.buf, c.chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("capture read failed: %w", err)
		}
	}
}

// Close terminates the ffmpeg process and reaps it.
func (c *ffmpegCapture) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.cmd.Wait()
	})
	return nil
}

// extractJPEGFrame extracts a complete JPEG frame (SOI..EOI) from the buffer.
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	// Find JPEG end marker (FFD9)
	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
