package core

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/mediaflow/internal/domain"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    domain.TrackKind
	enabled bool
	stopped bool
	onEnded func()
}

func newFakeTrack(id string, kind domain.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(b bool) {
	t.mu.Lock()
	t.enabled = b
	t.mu.Unlock()
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = fn
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.end()
	return nil
}

// end behaves like a device going away.
func (t *fakeTrack) end() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTrack) hasHandler() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onEnded != nil
}

type fakeHandle struct {
	id     string
	tracks []Track
}

func (h *fakeHandle) ID() string      { return h.id }
func (h *fakeHandle) Tracks() []Track { return h.tracks }

func newFakeHandle(tracks ...*fakeTrack) *fakeHandle {
	h := &fakeHandle{id: "handle"}
	for _, t := range tracks {
		h.tracks = append(h.tracks, t)
	}
	return h
}

type fakeAcquirer struct {
	calls       int
	constraints domain.MediaConstraints
	handle      MediaHandle
	err         error
	panicWith   any
}

func (a *fakeAcquirer) Acquire(_ context.Context, c domain.MediaConstraints, onSuccess func(MediaHandle), onFailure func(error)) {
	a.calls++
	a.constraints = c
	if a.panicWith != nil {
		panic(a.panicWith)
	}
	if a.err != nil {
		onFailure(a.err)
		return
	}
	onSuccess(a.handle)
}

type fakeTransport struct {
	mu      sync.Mutex
	updates []domain.Update
	err     error
	closed  bool
}

func (t *fakeTransport) UpdateSpec(u domain.Update, cb Callback) {
	t.mu.Lock()
	t.updates = append(t.updates, u)
	err := t.err
	t.mu.Unlock()
	cb.call(err)
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *fakeTransport) sent() []domain.Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.Update(nil), t.updates...)
}

type controlCall struct {
	kind string
	msg  domain.ControlMessage
}

type fakeSession struct {
	p2p         bool
	unpublished []*Stream
	controls    []controlCall
}

func (s *fakeSession) P2P() bool { return s.p2p }

func (s *fakeSession) Unpublish(st *Stream) { s.unpublished = append(s.unpublished, st) }

func (s *fakeSession) SendControlMessage(_ *Stream, kind string, msg domain.ControlMessage) {
	s.controls = append(s.controls, controlCall{kind: kind, msg: msg})
}

type fakePlayer struct{ destroyed bool }

func (p *fakePlayer) Destroy() error {
	p.destroyed = true
	return nil
}

type fakeRenderer struct {
	opts    []PlayerOptions
	players []*fakePlayer
	err     error
}

func (r *fakeRenderer) NewPlayer(o PlayerOptions) (Player, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.opts = append(r.opts, o)
	p := &fakePlayer{}
	r.players = append(r.players, p)
	return p, nil
}

var errDenied = errors.New("permission denied")

// recorder collects every event a stream emits.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(s *Stream, kinds ...EventKind) *recorder {
	r := &recorder{}
	for _, k := range kinds {
		s.On(k, func(e Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

var allKinds = []EventKind{EventAccessAccepted, EventAccessDenied, EventStreamEnded, EventSetAttributes, EventSendData}

func remote() *bool { return domain.Bool(false) }
