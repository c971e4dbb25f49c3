package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// Track wraps a captured mediadevices track.
type Track struct {
	src     mediadevices.Track
	enabled atomic.Bool

	mu      sync.Mutex
	ended   bool
	onEnded func()
}

func NewTrack(src mediadevices.Track) *Track {
	t := &Track{src: src}
	t.enabled.Store(true)
	src.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "media").Str("track_id", src.ID()).Msg("track ended")
		}
		t.end()
	})
	return t
}

func (t *Track) ID() string { return t.src.ID() }

func (t *Track) Kind() domain.TrackKind {
	if t.src.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.TrackKindAudio
	}
	return domain.TrackKindVideo
}

// Enabled reports the mute intent. Frames keep flowing to the
// PeerConnection either way: muting takes effect only through the
// muteStream update the stream sends, on which the server drops the media.
func (t *Track) Enabled() bool           { return t.enabled.Load() }
func (t *Track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Local exposes the track for PeerConnection.AddTrack.
func (t *Track) Local() webrtc.TrackLocal { return t.src }

func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *Track) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	fn := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *Track) Stop() error {
	return t.src.Close()
}

// Handle groups the tracks of one capture.
type Handle struct {
	id     string
	tracks []core.Track
}

func NewHandle(id string, src []mediadevices.Track) *Handle {
	h := &Handle{id: id}
	for _, t := range src {
		h.tracks = append(h.tracks, NewTrack(t))
	}
	return h
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Tracks() []core.Track {
	out := make([]core.Track, len(h.tracks))
	copy(out, h.tracks)
	return out
}
