package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

type call struct {
	method string
	params map[string]any
}

// fakeSignaler answers requests from canned JSON results and records every
// message as decoded JSON.
type fakeSignaler struct {
	mu       sync.Mutex
	results  map[string]string
	errs     map[string]error
	requests []call
	notifies []call
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		results: map[string]string{methodPublish: `{"id":"s-1"}`},
		errs:    make(map[string]error),
	}
}

func toMap(v any) map[string]any {
	b, _ := json.Marshal(v)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func (f *fakeSignaler) Request(_ context.Context, method string, params, result any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, call{method: method, params: toMap(params)})
	if err := f.errs[method]; err != nil {
		return err
	}
	if res, ok := f.results[method]; ok && result != nil {
		return json.Unmarshal([]byte(res), result)
	}
	return nil
}

func (f *fakeSignaler) Notify(method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies = append(f.notifies, call{method: method, params: toMap(params)})
	return nil
}

func (f *fakeSignaler) requested(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.requests {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSignaler) notified(method string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.notifies {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

type fakeTransport struct {
	mu         sync.Mutex
	peer       string
	updates    []domain.Update
	closed     bool
	candidates []json.RawMessage
	onClosed   func()
}

func (t *fakeTransport) UpdateSpec(u domain.Update, cb core.Callback) {
	t.mu.Lock()
	t.updates = append(t.updates, u)
	t.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.fail()
}

func (t *fakeTransport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = fn
	t.mu.Unlock()
}

func (t *fakeTransport) watched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onClosed != nil
}

// fail runs the close callback as a dropped connection would.
func (t *fakeTransport) fail() {
	t.mu.Lock()
	fn := t.onClosed
	t.onClosed = nil
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTransport) AddRemoteCandidate(raw json.RawMessage) error {
	t.mu.Lock()
	t.candidates = append(t.candidates, raw)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type fakeFactory struct {
	mu         sync.Mutex
	err        error
	published  []*fakeTransport
	subscribed []*fakeTransport

	// started and release, when set, hold Publish mid-negotiation.
	started chan struct{}
	release chan struct{}
}

func (f *fakeFactory) Publish(_ context.Context, _ *core.Stream, peerID string) (core.Transport, error) {
	if f.release != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{peer: peerID}
	f.published = append(f.published, t)
	return t, nil
}

func (f *fakeFactory) Subscribe(context.Context, *core.Stream) (core.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{}
	f.subscribed = append(f.subscribed, t)
	return t, nil
}

func (f *fakeFactory) publishedTransports() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransport(nil), f.published...)
}

type fakeTrack struct {
	id      string
	kind    domain.TrackKind
	enabled bool
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind  { return t.kind }
func (t *fakeTrack) Enabled() bool           { return t.enabled }
func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled = enabled }
func (t *fakeTrack) OnEnded(func())          {}
func (t *fakeTrack) Stop() error             { return nil }

type fakeHandle struct{ tracks []core.Track }

func (h *fakeHandle) ID() string           { return "h" }
func (h *fakeHandle) Tracks() []core.Track { return h.tracks }

func audioHandle() *fakeHandle {
	return &fakeHandle{tracks: []core.Track{&fakeTrack{id: "a", kind: domain.TrackKindAudio, enabled: true}}}
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

var errBoom = errors.New("boom")
