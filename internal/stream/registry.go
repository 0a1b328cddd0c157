package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"visionpanel/internal/logger"
	"visionpanel/internal/vision"
)

// Boundary is the multipart boundary separating frames on the wire.
const Boundary = "frame"

const (
	frameHeader  = "--frame\r\nContent-Type: image/jpeg\r\n\r\n"
	frameTrailer = "\r\n"
)

// Registry owns the active stream sessions, at most one per viewer. It
// routes runtime reconfiguration to the right session and hands the delivery
// layer a lazy frame sequence to drain.
type Registry struct {
	processor vision.FrameProcessor
	config    Config
	logger    *logger.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	resources map[string]string // viewer -> bound resource id
}

// NewRegistry creates a session registry backed by the given frame processor.
func NewRegistry(processor vision.FrameProcessor, config Config, log *logger.Logger) *Registry {
	return &Registry{
		processor: processor,
		config:    config,
		logger:    log,
		sessions:  make(map[string]*Session),
		resources: make(map[string]string),
	}
}

// StartSession starts a new session for the viewer. Any existing session for
// the same viewer is fully stopped first, so two producers never run
// concurrently for one viewer. Returns ErrSourceUnavailable if the source
// cannot be opened; in that case any previous session is already gone.
func (r *Registry) StartSession(viewer, resourceID, locator string, config ProcessingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[viewer]; ok {
		prev.Stop()
		delete(r.sessions, viewer)
		delete(r.resources, viewer)
	}

	session, err := newSession(r.processor, locator, config, r.config, r.logger)
	if err != nil {
		return err
	}

	r.sessions[viewer] = session
	r.resources[viewer] = resourceID
	r.logger.Info("Stream session started",
		"viewer", viewer,
		"resource_id", resourceID,
		"model", config.Algorithm)
	return nil
}

// UpdateProcessingConfig forwards a config change to the viewer's session.
// No-op if the viewer has no session.
func (r *Registry) UpdateProcessingConfig(viewer string, algorithm *string, threshold *float64) {
	r.mu.Lock()
	session, ok := r.sessions[viewer]
	r.mu.Unlock()
	if !ok {
		return
	}
	session.SetProcessingConfig(algorithm, threshold)
}

// UpdateResource swaps the source of the viewer's session, but only when the
// session is still bound to resourceID. A mismatch means the caller's view is
// stale (the viewer has since switched resources) and is deliberately
// ignored rather than reported.
func (r *Registry) UpdateResource(viewer, resourceID, locator string) error {
	r.mu.Lock()
	session, ok := r.sessions[viewer]
	if !ok || r.resources[viewer] != resourceID {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	return session.SetResource(locator)
}

// Session returns the viewer's live session, or nil if none exists.
func (r *Registry) Session(viewer string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[viewer]
}

// BoundResource returns the resource id the viewer's session is bound to,
// or "" when the viewer has no session.
func (r *Registry) BoundResource(viewer string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resources[viewer]
}

// StopSessionFor stops the viewer's session only while it is still the one
// the given frame stream reads from. A delivery loop cleaning up after its
// stream ends must not tear down a successor session that a newer request
// has already started for the same viewer.
func (r *Registry) StopSessionFor(viewer string, frames *FrameStream) {
	r.mu.Lock()
	session, ok := r.sessions[viewer]
	if !ok || session != frames.session {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, viewer)
	delete(r.resources, viewer)
	r.mu.Unlock()

	session.Stop()
	r.logger.Info("Stream session stopped", "viewer", viewer)
}

// StopSession stops and removes the viewer's session if present.
func (r *Registry) StopSession(viewer string) {
	r.mu.Lock()
	session, ok := r.sessions[viewer]
	if ok {
		delete(r.sessions, viewer)
		delete(r.resources, viewer)
	}
	r.mu.Unlock()

	if ok {
		session.Stop()
		r.logger.Info("Stream session stopped", "viewer", viewer)
	}
}

// Shutdown stops every active session. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.sessions = make(map[string]*Session)
	r.resources = make(map[string]string)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
	if len(sessions) > 0 {
		r.logger.Info("All stream sessions stopped", "count", len(sessions))
	}
}

// FrameStream is a lazy sequence of multipart-framed payloads drained from
// one session. It is bound to the session that was live when Frames was
// called.
type FrameStream struct {
	session *Session
}

// Frames returns the frame sequence for the viewer's current session, or
// ErrNoActiveSession if the viewer has none.
func (r *Registry) Frames(viewer string) (*FrameStream, error) {
	r.mu.Lock()
	session, ok := r.sessions[viewer]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNoActiveSession
	}
	return &FrameStream{session: session}, nil
}

// Next blocks until the session publishes a new frame and returns it wrapped
// in the multipart envelope. It returns io.EOF once the session has stopped
// or failed, ending the sequence.
func (f *FrameStream) Next(ctx context.Context) ([]byte, error) {
	frame, err := f.session.NextFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return nil, io.EOF
		}
		return nil, err
	}

	payload := make([]byte, 0, len(frameHeader)+len(frame)+len(frameTrailer))
	payload = append(payload, frameHeader...)
	payload = append(payload, frame...)
	payload = append(payload, frameTrailer...)
	return payload, nil
}
