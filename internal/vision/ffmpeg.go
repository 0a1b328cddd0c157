package vision

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"visionpanel/internal/logger"
)

// FFmpegWrapper wraps the ffmpeg executable used for frame capture.
type FFmpegWrapper struct {
	logger     *logger.Logger
	ffmpegPath string
}

// NewFFmpegWrapper locates ffmpeg and returns a wrapper around it.
func NewFFmpegWrapper(log *logger.Logger) (*FFmpegWrapper, error) {
	wrapper := &FFmpegWrapper{
		logger:     log,
		ffmpegPath: "ffmpeg",
	}

	path, err := wrapper.detectFFmpeg()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	wrapper.ffmpegPath = path

	log.Info("FFmpeg wrapper initialized", "path", path)
	return wrapper, nil
}

// detectFFmpeg finds the ffmpeg executable.
func (f *FFmpegWrapper) detectFFmpeg() (string, error) {
	paths := []string{"ffmpeg", "/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg"}

	for _, path := range paths {
		cmd := exec.Command(path, "-version")
		if err := cmd.Run(); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("ffmpeg not found in PATH or common locations")
}

// BuildCommand builds an ffmpeg command bound to the context.
func (f *FFmpegWrapper) BuildCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffmpegPath, args...)
}

// DeviceLocalDefault is the locator for the machine's default V4L2 device.
const DeviceLocalDefault = "0"

// streamArgs builds the ffmpeg arguments for a continuous MJPEG pipe from
// the given source locator.
func streamArgs(locator string) []string {
	common := []string{
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	}

	switch {
	case locator == DeviceLocalDefault:
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-f", "v4l2",
			"-i", "/dev/video0",
		}, common...)
	case strings.HasPrefix(locator, "rtsp://"):
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-rtsp_transport", "tcp",
			"-i", locator,
		}, common...)
	default:
		return append([]string{
			"-hide_banner", "-loglevel", "error",
			"-i", locator,
		}, common...)
	}
}
