package vision

import (
	"fmt"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"

	"visionpanel/internal/logger"
)

// Prober checks whether a camera source is reachable before it is saved.
type Prober struct {
	logger  *logger.Logger
	timeout time.Duration
}

// NewProber creates a source prober.
func NewProber(log *logger.Logger) *Prober {
	return &Prober{
		logger:  log,
		timeout: 5 * time.Second,
	}
}

// Probe validates the source locator. For RTSP sources it performs a DESCRIBE
// against the camera and reports what the server advertises; other locator
// kinds are validated syntactically only, since opening them can block on
// hardware.
func (p *Prober) Probe(locator string) error {
	switch {
	case locator == DeviceLocalDefault:
		return nil
	case strings.HasPrefix(locator, "rtsp://"):
		return p.probeRTSP(locator)
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return nil
	default:
		return fmt.Errorf("unsupported source locator: %s", locator)
	}
}

// probeRTSP connects to the RTSP server and issues a DESCRIBE.
func (p *Prober) probeRTSP(locator string) error {
	u, err := base.ParseURL(locator)
	if err != nil {
		return fmt.Errorf("invalid rtsp url: %w", err)
	}

	client := &gortsplib.Client{
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		return fmt.Errorf("rtsp describe failed: %w", err)
	}
	defer client.Close()

	if len(desc.Medias) == 0 {
		return fmt.Errorf("rtsp source advertises no media")
	}

	p.logger.Info("RTSP source probed", "url", locator, "medias", len(desc.Medias))
	return nil
}
