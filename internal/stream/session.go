package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"visionpanel/internal/logger"
	"visionpanel/internal/vision"
)

// State is the lifecycle state of a stream session.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProcessingConfig controls per-frame annotation. An empty Algorithm means
// frames pass through raw. Threshold is normalized to [0,1] by the caller.
type ProcessingConfig struct {
	Algorithm string
	Threshold float64
}

// Config contains tuning for the acquisition loop's failure policy.
type Config struct {
	// ReadBackoff is the delay before retrying a failed acquisition cycle.
	ReadBackoff time.Duration
	// MaxFailures is the number of consecutive failed cycles after which the
	// session transitions to StateFailed and its producer exits.
	MaxFailures int
}

const (
	defaultReadBackoff = 500 * time.Millisecond
	defaultMaxFailures = 20
)

// Session owns one capture source and one processing configuration for one
// viewer. A dedicated producer goroutine continuously acquires, optionally
// annotates, and publishes frames into a single latest-frame slot.
//
// Three independent locks guard the mutable state: capMu for the capture
// handle, cfgMu for the processing config, and frameMu for the frame slot.
// None is ever held across a blocking external call, so a slow device read
// or inference round-trip never stalls a config update or a frame read.
type Session struct {
	processor vision.FrameProcessor
	logger    *logger.Logger

	readBackoff time.Duration
	maxFailures int

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	capMu   sync.Mutex
	capture vision.Capture
	locator string

	cfgMu  sync.Mutex
	config ProcessingConfig

	frameMu    sync.Mutex
	latest     []byte
	frameReady chan struct{}
}

// newSession opens the capture source and launches the producer goroutine.
// The initial open failure is surfaced synchronously as ErrSourceUnavailable.
func newSession(processor vision.FrameProcessor, locator string, config ProcessingConfig, opts Config, log *logger.Logger) (*Session, error) {
	capture, err := processor.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if opts.ReadBackoff <= 0 {
		opts.ReadBackoff = defaultReadBackoff
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		processor:   processor,
		logger:      log,
		readBackoff: opts.ReadBackoff,
		maxFailures: opts.MaxFailures,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		capture:     capture,
		locator:     locator,
		config:      config,
		frameReady:  make(chan struct{}, 1),
	}
	s.state.Store(int32(StateStarting))

	go s.run()
	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Locator returns the session's current source locator.
func (s *Session) Locator() string {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.locator
}

// run is the producer loop. Each cycle re-reads the capture handle and the
// processing config under their locks, so swaps and updates take effect by
// the following cycle at the latest.
func (s *Session) run() {
	defer close(s.done)
	s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))

	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.capMu.Lock()
		capture := s.capture
		s.capMu.Unlock()

		var frame []byte
		var err error
		if capture == nil {
			err = ErrSourceUnavailable
		} else {
			frame, err = capture.ReadFrame()
		}
		if err != nil {
			if !s.retryAfterFailure(&failures, "frame acquisition failed", err) {
				return
			}
			continue
		}

		s.cfgMu.Lock()
		config := s.config
		s.cfgMu.Unlock()

		if config.Algorithm != "" {
			annotated, err := s.processor.Annotate(s.ctx, frame, config.Algorithm, config.Threshold)
			if err != nil {
				if !s.retryAfterFailure(&failures, "frame annotation failed", err) {
					return
				}
				continue
			}
			frame = annotated
		}

		failures = 0
		s.publish(frame)
	}
}

// retryAfterFailure records one failed cycle and sleeps the backoff. It
// returns false when the producer must exit, either because the session is
// stopping or because the consecutive-failure budget is exhausted.
func (s *Session) retryAfterFailure(failures *int, msg string, err error) bool {
	if s.ctx.Err() != nil {
		return false
	}

	*failures++
	if *failures >= s.maxFailures {
		s.logger.Error("Stream session failed permanently", "error", err, "failures", *failures)
		s.fail()
		return false
	}

	s.logger.Warn(msg, "error", err, "failures", *failures)
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(s.readBackoff):
		return true
	}
}

// fail transitions the session to its terminal failed state and releases the
// capture handle so a dead source does not hold the device open.
func (s *Session) fail() {
	s.state.CompareAndSwap(int32(StateRunning), int32(StateFailed))

	s.capMu.Lock()
	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
	s.capMu.Unlock()
}

// publish stores the frame in the single latest-frame slot and sets the
// new-frame signal. A frame the consumer never picked up is overwritten;
// freshness wins over completeness. The signal is set inside the frame
// critical section so slot and signal always move together.
func (s *Session) publish(frame []byte) {
	s.frameMu.Lock()
	s.latest = frame
	select {
	case s.frameReady <- struct{}{}:
	default:
	}
	s.frameMu.Unlock()
}

// NextFrame blocks until a frame newer than the last one returned has been
// published, then returns a copy of it. It returns ErrSessionClosed once the
// session has stopped or failed, so a draining consumer terminates instead of
// blocking forever.
func (s *Session) NextFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-s.frameReady:
		s.frameMu.Lock()
		frame := make([]byte, len(s.latest))
		copy(frame, s.latest)
		// A publish may have landed between the signal receive above and
		// the lock acquisition, re-arming the signal for the very frame
		// being taken. Drain it here; no publish can interleave while the
		// frame lock is held.
		select {
		case <-s.frameReady:
		default:
		}
		s.frameMu.Unlock()
		return frame, nil
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetProcessingConfig updates whichever fields are non-nil, leaving the
// others unchanged. The change takes effect on the producer's next cycle.
func (s *Session) SetProcessingConfig(algorithm *string, threshold *float64) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if algorithm != nil {
		s.config.Algorithm = *algorithm
	}
	if threshold != nil {
		s.config.Threshold = *threshold
	}
}

// SetResource swaps the capture source. The old handle is closed under the
// resource lock; a read in progress against it fails gracefully and the
// producer picks up the new handle on its next cycle.
func (s *Session) SetResource(locator string) error {
	s.capMu.Lock()
	defer s.capMu.Unlock()

	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}

	capture, err := s.processor.Open(locator)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	s.capture = capture
	s.locator = locator
	return nil
}

// Stop signals the producer to exit, unblocks any read in progress by
// closing the capture, waits for the producer to terminate, and only then
// considers the session stopped. Safe to call more than once; concurrent
// callers all block until the first stop completes.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.state.CompareAndSwap(int32(StateStarting), int32(StateStopping))
		s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))

		s.cancel()

		// A blocked capture read ignores the context; closing the capture
		// interrupts it.
		s.capMu.Lock()
		if s.capture != nil {
			s.capture.Close()
			s.capture = nil
		}
		s.capMu.Unlock()

		<-s.done
		s.state.CompareAndSwap(int32(StateStopping), int32(StateStopped))
	})
}
