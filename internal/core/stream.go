package core

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/domain"
)

// Spec describes a stream at construction time.
type Spec struct {
	// Stream is a pre-existing media handle, adopted instead of capturing.
	Stream    MediaHandle
	URL       string
	Recording string

	Audio  bool
	Video  bool
	Screen bool
	Data   bool

	// VideoSize is minWidth, minHeight, maxWidth, maxHeight.
	VideoSize []int
	// VideoFrameRate is min and max frame rate.
	VideoFrameRate []float32

	ExtensionID     string
	DesktopStreamID string
	Attributes      domain.Attributes

	// Local defaults to true.
	Local    *bool
	StreamID domain.StreamID
	Fake     bool
}

type Option func(*Stream)

func WithAcquirer(a DeviceAcquirer) Option {
	return func(s *Stream) { s.acquirer = a }
}

func WithRenderer(r Renderer) Option {
	return func(s *Stream) { s.renderer = r }
}

// Stream is a local capture or a remote subscription inside a session.
type Stream struct {
	events *Dispatcher

	mu   sync.RWMutex
	id   domain.StreamID
	role domain.Role
	caps domain.Capabilities

	url             string
	recording       string
	size            *domain.VideoBounds
	frameRate       *domain.FrameRateBounds
	extensionID     string
	desktopStreamID string
	fake            bool

	handle  MediaHandle
	watcher *endWatcher

	mutedAudio bool
	mutedVideo bool
	attrs      domain.Attributes

	player Player
	target string

	session    Session
	transports []Transport

	acquirer DeviceAcquirer
	renderer Renderer

	initialized atomic.Bool
	closed      bool
}

// New validates spec and builds a stream. Only malformed video bounds fail.
func New(spec Spec, opts ...Option) (*Stream, error) {
	size, err := domain.ParseVideoSize(spec.VideoSize)
	if err != nil {
		return nil, err
	}
	rate, err := domain.ParseFrameRate(spec.VideoFrameRate)
	if err != nil {
		return nil, err
	}

	role := domain.RoleLocal
	if spec.Local != nil && !*spec.Local {
		role = domain.RoleRemote
	}

	s := &Stream{
		events: NewDispatcher(),
		id:     spec.StreamID,
		role:   role,
		caps: domain.Capabilities{
			Audio:  spec.Audio,
			Video:  spec.Video,
			Screen: spec.Screen,
			Data:   spec.Data,
		},
		url:             spec.URL,
		recording:       spec.Recording,
		size:            size,
		frameRate:       rate,
		extensionID:     spec.ExtensionID,
		desktopStreamID: spec.DesktopStreamID,
		fake:            spec.Fake,
		handle:          spec.Stream,
		attrs:           spec.Attributes.Clone(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Stream) On(kind EventKind, fn Listener) ListenerID { return s.events.On(kind, fn) }
func (s *Stream) Off(kind EventKind, id ListenerID) bool    { return s.events.Off(kind, id) }

func (s *Stream) emit(e Event) { s.events.Emit(e) }

// ID returns "local" for unpublished local streams.
func (s *Stream) ID() domain.StreamID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idLocked()
}

func (s *Stream) idLocked() domain.StreamID {
	if s.role == domain.RoleLocal && s.id == "" {
		return domain.LocalStreamID
	}
	return s.id
}

// SetID is called by the session once it assigns an identifier.
func (s *Stream) SetID(id domain.StreamID) {
	s.mu.Lock()
	current := s.id
	if current == "" {
		s.id = id
	}
	s.mu.Unlock()
	if current != "" && current != id {
		s.logger(current).Warn().Str("new_id", string(id)).Msg("stream id already assigned, ignoring")
	}
}

// ResetID forgets a server id on a local stream whose publication failed.
func (s *Stream) ResetID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role == domain.RoleLocal {
		s.id = ""
	}
}

func (s *Stream) logger(id domain.StreamID) *zerolog.Logger {
	l := log.With().Str("module", "core.stream").Str("stream_id", string(id)).Logger()
	return &l
}

func (s *Stream) Role() domain.Role { return s.role }
func (s *Stream) IsLocal() bool     { return s.role == domain.RoleLocal }

func (s *Stream) Capabilities() domain.Capabilities { return s.caps }
func (s *Stream) HasAudio() bool                    { return s.caps.Audio }
func (s *Stream) HasVideo() bool                    { return s.caps.Video }
func (s *Stream) HasScreen() bool                   { return s.caps.Screen }
func (s *Stream) HasData() bool                     { return s.caps.Data }
func (s *Stream) HasMedia() bool                    { return s.caps.HasMedia() }

// IsExternal reports a stream fed from a URL or a recording.
func (s *Stream) IsExternal() bool {
	return s.url != "" || s.recording != ""
}

func (s *Stream) URL() string       { return s.url }
func (s *Stream) Recording() string { return s.recording }

func (s *Stream) MediaHandle() MediaHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *Stream) AudioMuted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutedAudio
}

func (s *Stream) VideoMuted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutedVideo
}

func (s *Stream) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Attach binds the stream to its session and transports on publish/subscribe.
func (s *Stream) Attach(session Session, transports ...Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.transports = slices.Clone(transports)
}

// AddTransport appends a per-peer transport in p2p sessions. It reports
// false if the stream was closed or left its session meanwhile.
func (s *Stream) AddTransport(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.session == nil {
		return false
	}
	s.transports = append(s.transports, t)
	return true
}

// RemoveTransport drops a transport that went away on its own.
func (s *Stream) RemoveTransport(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.transports {
		if cur == t {
			s.transports = slices.Delete(s.transports, i, i+1)
			return true
		}
	}
	return false
}

// Detach drops session and transports and returns the transports so the
// session can close them.
func (s *Stream) Detach() []Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.transports
	s.session = nil
	s.transports = nil
	return out
}

func (s *Stream) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Stream) Transports() []Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transports)
}

func (s *Stream) Attributes() domain.Attributes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attrs.Clone()
}

// SetAttributes asks the session to change attributes of a local stream.
// They are committed by UpdateLocalAttributes after the round trip.
func (s *Stream) SetAttributes(attrs domain.Attributes) {
	id := s.ID()
	if !s.IsLocal() {
		s.logger(id).Error().Msg("failed to set attributes data, this stream has not been published")
		return
	}
	s.emit(NewSetAttributes(id, attrs))
}

func (s *Stream) UpdateLocalAttributes(attrs domain.Attributes) {
	s.mu.Lock()
	s.attrs = attrs.Clone()
	s.mu.Unlock()
}

func (s *Stream) SendData(msg any) {
	id := s.ID()
	if !s.IsLocal() || !s.HasData() {
		s.logger(id).Error().Msg("failed to send data, this stream has not been published")
		return
	}
	s.emit(NewSendData(id, msg))
}
