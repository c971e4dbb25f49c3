package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/mediaflow/internal/domain"
)

// endWatcher turns the end of any track into a single stream-ended event
// for one media handle generation. The first track to end wins.
type endWatcher struct {
	once     sync.Once
	disarmed atomic.Bool
	tracks   []Track
	fire     func(domain.TrackKind)
}

func newEndWatcher(tracks []Track, fire func(domain.TrackKind)) *endWatcher {
	return &endWatcher{tracks: tracks, fire: fire}
}

func (w *endWatcher) arm() {
	for _, t := range w.tracks {
		kind := t.Kind()
		t.OnEnded(func() { w.trigger(kind) })
	}
}

func (w *endWatcher) trigger(kind domain.TrackKind) {
	w.once.Do(func() {
		w.detach()
		if !w.disarmed.Load() {
			w.fire(kind)
		}
	})
}

// disarm prevents any further emission, used before stopping tracks on purpose.
func (w *endWatcher) disarm() {
	w.disarmed.Store(true)
	w.detach()
}

func (w *endWatcher) detach() {
	for _, t := range w.tracks {
		t.OnEnded(nil)
	}
}

// Init requests device access for local media, or accepts immediately when
// nothing needs capturing. The outcome is reported once as access-accepted or
// access-denied. Init must be called once; later calls are ignored.
func (s *Stream) Init(ctx context.Context) {
	id := s.ID()
	if !s.initialized.CompareAndSwap(false, true) {
		s.logger(id).Warn().Msg("stream already initialized")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("init: %v", r)
			s.logger(id).Error().Err(err).Msg("failed to get access to local media")
			s.emit(NewAccessDenied(id, err))
		}
	}()

	if !s.caps.HasMedia() || s.url != "" {
		s.emit(NewAccessAccepted(id))
		return
	}

	if h := s.MediaHandle(); h != nil {
		s.adopt(h)
		s.emit(NewAccessAccepted(id))
		return
	}

	if s.acquirer == nil {
		s.logger(id).Error().Err(ErrNoDeviceAcquirer).Msg("failed to get access to local media")
		s.emit(NewAccessDenied(id, ErrNoDeviceAcquirer))
		return
	}

	s.logger(id).Info().Msg("requested access to local media")
	s.acquirer.Acquire(ctx, s.constraints(), s.onAccessGranted, s.onAccessFailed)
}

func (s *Stream) constraints() domain.MediaConstraints {
	c := domain.MediaConstraints{
		Audio:           s.caps.Audio,
		Video:           s.caps.Video || s.caps.Screen,
		Screen:          s.caps.Screen,
		Fake:            s.fake,
		ExtensionID:     s.extensionID,
		DesktopStreamID: s.desktopStreamID,
	}
	if c.Video {
		c.Size = s.size
		c.FrameRate = s.frameRate
	}
	return c
}

func (s *Stream) onAccessGranted(h MediaHandle) {
	id := s.ID()
	if s.Closed() {
		for _, t := range h.Tracks() {
			_ = t.Stop()
		}
		s.emit(NewAccessDenied(id, ErrStreamClosed))
		return
	}
	s.logger(id).Info().Int("tracks", len(h.Tracks())).Msg("user has granted access to local media")
	s.adopt(h)
	s.emit(NewAccessAccepted(id))
}

func (s *Stream) onAccessFailed(err error) {
	id := s.ID()
	s.logger(id).Error().Err(err).Msg("failed to get access to local media")
	s.emit(NewAccessDenied(id, err))
}

// AdoptMediaHandle takes ownership of a handle delivered by a transport, used
// by remote streams once their tracks arrive.
func (s *Stream) AdoptMediaHandle(h MediaHandle) {
	if s.Closed() {
		return
	}
	s.adopt(h)
}

func (s *Stream) adopt(h MediaHandle) {
	w := newEndWatcher(h.Tracks(), func(kind domain.TrackKind) {
		s.emit(NewStreamEnded(s.ID(), kind))
	})

	s.mu.Lock()
	old := s.watcher
	s.handle = h
	s.watcher = w
	s.mu.Unlock()

	if old != nil {
		old.disarm()
	}
	w.arm()
}

// Close releases a local stream: unpublishes it, hides it and stops every
// track without reporting stream-ended. Remote streams are left untouched.
func (s *Stream) Close() {
	if !s.IsLocal() {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	session := s.session
	s.mu.Unlock()

	if session != nil {
		session.Unpublish(s)
	}
	s.Stop()

	s.mu.Lock()
	h, w := s.handle, s.watcher
	s.handle, s.watcher = nil, nil
	s.mu.Unlock()

	if w != nil {
		w.disarm()
	}
	if h == nil {
		return
	}
	for _, t := range h.Tracks() {
		t.OnEnded(nil)
		if err := t.Stop(); err != nil {
			s.logger(s.ID()).Warn().Err(err).Str("track_id", t.ID()).Msg("stop track")
		}
	}
}
