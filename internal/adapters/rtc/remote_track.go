package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// RemoteTrack adapts a received pion track to core.Track.
type RemoteTrack struct {
	track   *webrtc.TrackRemote
	enabled atomic.Bool

	mu      sync.Mutex
	ended   bool
	onEnded func()
}

func NewRemoteTrack(t *webrtc.TrackRemote) *RemoteTrack {
	rt := &RemoteTrack{track: t}
	rt.enabled.Store(true)
	return rt
}

func (t *RemoteTrack) ID() string              { return t.track.ID() }
func (t *RemoteTrack) Kind() domain.TrackKind  { return KindOf(t.track.Kind()) }
func (t *RemoteTrack) Enabled() bool           { return t.enabled.Load() }
func (t *RemoteTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *RemoteTrack) MimeType() string        { return t.track.Codec().MimeType }

func (t *RemoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

// ReadPacket reads the next RTP packet. A read error ends the track.
func (t *RemoteTrack) ReadPacket() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	if err != nil {
		t.end()
		return nil, err
	}
	return pkt, nil
}

func (t *RemoteTrack) end() {
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

// Stop marks the track ended without notifying. The receiver is owned by the
// connection and released when it closes.
func (t *RemoteTrack) Stop() error {
	t.mu.Lock()
	t.ended = true
	t.onEnded = nil
	t.mu.Unlock()
	return nil
}

// RemoteHandle collects the tracks received for one subscription.
type RemoteHandle struct {
	id string

	mu     sync.RWMutex
	tracks []core.Track
}

func NewRemoteHandle(id string) *RemoteHandle {
	return &RemoteHandle{id: id}
}

func (h *RemoteHandle) ID() string { return h.id }

func (h *RemoteHandle) Tracks() []core.Track {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]core.Track, len(h.tracks))
	copy(out, h.tracks)
	return out
}

func (h *RemoteHandle) Add(t core.Track) {
	h.mu.Lock()
	h.tracks = append(h.tracks, t)
	h.mu.Unlock()
}
