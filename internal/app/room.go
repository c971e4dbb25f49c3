package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// Signaler is the request/notify side of the signaling connection.
type Signaler interface {
	Request(ctx context.Context, method string, params, result any) error
	Notify(method string, params any) error
}

// TransportFactory negotiates media connections for streams.
type TransportFactory interface {
	Publish(ctx context.Context, s *core.Stream, peerID string) (core.Transport, error)
	Subscribe(ctx context.Context, s *core.Stream) (core.Transport, error)
}

type Limiter interface {
	Allow(key string) bool
}

type RoomConfig struct {
	P2P            bool
	RequestTimeout time.Duration
	// DataLimiter throttles outgoing data messages per stream; nil disables it.
	DataLimiter Limiter
	// StreamOptions are applied to remote streams announced by the server.
	StreamOptions []core.Option
}

type candidateSink interface {
	AddRemoteCandidate(json.RawMessage) error
}

// closeNotifier is implemented by transports that can fail on their own.
type closeNotifier interface {
	OnClosed(func())
}

type listenerRef struct {
	kind core.EventKind
	id   core.ListenerID
}

// Room is the session streams are published to and subscribed from.
type Room struct {
	ctx      context.Context
	signaler Signaler
	factory  TransportFactory
	registry *Registry
	cfg      RoomConfig

	mu         sync.Mutex
	published  map[domain.StreamID][]listenerRef
	subscribed map[domain.StreamID]bool
	sinks      map[domain.StreamID]map[string]candidateSink
	onAdded    func(*core.Stream)
	onRemoved  func(*core.Stream)
	onData     func(domain.StreamID, json.RawMessage)
}

// NewRoom binds a room to a signaling connection. ctx bounds the
// connections the room opens on behalf of remote peers.
func NewRoom(ctx context.Context, signaler Signaler, factory TransportFactory, registry *Registry, cfg RoomConfig) *Room {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Room{
		ctx:        ctx,
		signaler:   signaler,
		factory:    factory,
		registry:   registry,
		cfg:        cfg,
		published:  make(map[domain.StreamID][]listenerRef),
		subscribed: make(map[domain.StreamID]bool),
		sinks:      make(map[domain.StreamID]map[string]candidateSink),
	}
}

func (r *Room) P2P() bool { return r.cfg.P2P }

func (r *Room) Registry() *Registry { return r.registry }

// OnStreamAdded is called for each remote stream announced by the server.
func (r *Room) OnStreamAdded(fn func(*core.Stream)) {
	r.mu.Lock()
	r.onAdded = fn
	r.mu.Unlock()
}

func (r *Room) OnStreamRemoved(fn func(*core.Stream)) {
	r.mu.Lock()
	r.onRemoved = fn
	r.mu.Unlock()
}

// OnData receives data messages of remote streams.
func (r *Room) OnData(fn func(domain.StreamID, json.RawMessage)) {
	r.mu.Lock()
	r.onData = fn
	r.mu.Unlock()
}

func (r *Room) logger(id domain.StreamID) *zerolog.Logger {
	l := log.With().Str("module", "app.room").Str("stream_id", string(id)).Logger()
	return &l
}

func (r *Room) request(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()
	return r.signaler.Request(ctx, method, params, result)
}

func (r *Room) state() string {
	if r.cfg.P2P {
		return "p2p"
	}
	return "erizo"
}

// Publish announces a local stream and sends its media. Streams with media
// must have been initialized first.
func (r *Room) Publish(ctx context.Context, s *core.Stream) error {
	if !s.IsLocal() {
		return ErrNotLocal
	}
	if s.Closed() {
		return core.ErrStreamClosed
	}
	if s.Session() != nil {
		return ErrAlreadyBound
	}
	if s.HasMedia() && !s.IsExternal() && s.MediaHandle() == nil {
		return ErrNotInitialized
	}

	req := publishRequest{
		State:      r.state(),
		Audio:      s.HasAudio(),
		Video:      s.HasVideo(),
		Screen:     s.HasScreen(),
		Data:       s.HasData(),
		URL:        s.URL(),
		Recording:  s.Recording(),
		Attributes: s.Attributes(),
		MuteStream: muteState{Audio: s.AudioMuted(), Video: s.VideoMuted()},
	}
	var res publishResponse
	if err := r.request(ctx, methodPublish, req, &res); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if res.ID == "" {
		return errors.New("publish: server returned no stream id")
	}
	assigned := s.ID() == domain.LocalStreamID
	s.SetID(res.ID)
	id := s.ID()

	var transports []core.Transport
	if !r.cfg.P2P && !s.IsExternal() && (s.HasMedia() || s.HasData()) {
		t, err := r.factory.Publish(ctx, s, "")
		if err != nil {
			if nerr := r.signaler.Notify(methodUnpublish, streamRef{ID: id}); nerr != nil {
				r.logger(id).Warn().Err(nerr).Msg("unpublish after failed negotiation")
			}
			if assigned {
				s.ResetID()
			}
			return fmt.Errorf("publish %s: %w", id, err)
		}
		transports = append(transports, t)
		r.addSink(id, "", t)
	}

	s.Attach(r, transports...)
	for _, t := range transports {
		r.watch(s, id, "", t)
	}
	r.registry.Add(s)
	refs := []listenerRef{
		{kind: core.EventSetAttributes, id: s.On(core.EventSetAttributes, r.setAttributesListener(s))},
		{kind: core.EventSendData, id: s.On(core.EventSendData, r.sendData)},
	}
	r.mu.Lock()
	r.published[id] = refs
	r.mu.Unlock()

	r.logger(id).Info().Bool("p2p", r.cfg.P2P).Int("transports", len(transports)).Msg("published")
	return nil
}

// setAttributesListener commits attributes once the server accepted them.
func (r *Room) setAttributesListener(s *core.Stream) core.Listener {
	return func(e core.Event) {
		attrs := e.Attributes()
		go func() {
			err := r.request(r.ctx, methodUpdateAttributes, attributesMessage{ID: e.StreamID(), Attrs: attrs}, nil)
			if err != nil {
				r.logger(e.StreamID()).Error().Err(err).Msg("update attributes")
				return
			}
			s.UpdateLocalAttributes(attrs)
		}()
	}
}

func (r *Room) sendData(e core.Event) {
	id := e.StreamID()
	if r.cfg.DataLimiter != nil && !r.cfg.DataLimiter.Allow(string(id)) {
		r.logger(id).Warn().Msg("data message rate limited, dropping")
		return
	}
	if err := r.signaler.Notify(methodSendData, dataMessage{ID: id, Msg: e.Message()}); err != nil {
		r.logger(id).Error().Err(err).Msg("send data")
	}
}

// Unpublish withdraws a local stream. It is also called by Stream.Close.
func (r *Room) Unpublish(s *core.Stream) {
	id := s.ID()
	r.mu.Lock()
	refs, ok := r.published[id]
	delete(r.published, id)
	delete(r.sinks, id)
	r.mu.Unlock()
	if !ok {
		r.logger(id).Warn().Msg("unpublish: stream is not published")
		return
	}

	for _, ref := range refs {
		s.Off(ref.kind, ref.id)
	}
	r.registry.Remove(id)
	for _, t := range s.Detach() {
		t.Close()
	}
	if err := r.signaler.Notify(methodUnpublish, streamRef{ID: id}); err != nil {
		r.logger(id).Warn().Err(err).Msg("unpublish")
	}
	r.logger(id).Info().Msg("unpublished")
}

// Subscribe requests a remote stream with opts sanitized against what the
// stream offers.
func (r *Room) Subscribe(ctx context.Context, s *core.Stream, opts domain.Options) error {
	if s.IsLocal() {
		return ErrNotRemote
	}
	id := s.ID()
	if _, ok := r.registry.Get(id); !ok {
		return ErrUnknownStream
	}
	r.mu.Lock()
	if r.subscribed[id] {
		r.mu.Unlock()
		return ErrAlreadyBound
	}
	r.subscribed[id] = true
	r.mu.Unlock()

	checked, _ := s.CheckOptions(opts, false).(domain.Options)
	params, err := subscribeParams(id, checked)
	if err != nil {
		r.forgetSubscription(id)
		return fmt.Errorf("subscribe %s: %w", id, err)
	}
	if err := r.request(ctx, methodSubscribe, params, nil); err != nil {
		r.forgetSubscription(id)
		return fmt.Errorf("subscribe %s: %w", id, err)
	}

	var transports []core.Transport
	if !r.cfg.P2P && s.HasMedia() {
		t, err := r.factory.Subscribe(ctx, s)
		if err != nil {
			r.forgetSubscription(id)
			if nerr := r.signaler.Notify(methodUnsubscribe, streamRef{ID: id}); nerr != nil {
				r.logger(id).Warn().Err(nerr).Msg("unsubscribe after failed negotiation")
			}
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
		transports = append(transports, t)
		r.addSink(id, "", t)
	}
	s.Attach(r, transports...)
	for _, t := range transports {
		r.watch(s, id, "", t)
	}
	r.logger(id).Info().Msg("subscribed")
	return nil
}

// Unsubscribe stops receiving a remote stream.
func (r *Room) Unsubscribe(s *core.Stream) error {
	id := s.ID()
	if !r.forgetSubscription(id) {
		return ErrUnknownStream
	}
	r.release(s)
	if err := r.signaler.Notify(methodUnsubscribe, streamRef{ID: id}); err != nil {
		r.logger(id).Warn().Err(err).Msg("unsubscribe")
	}
	r.logger(id).Info().Msg("unsubscribed")
	return nil
}

func (r *Room) forgetSubscription(id domain.StreamID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.subscribed[id]
	delete(r.subscribed, id)
	delete(r.sinks, id)
	return ok
}

func (r *Room) release(s *core.Stream) {
	s.Stop()
	for _, t := range s.Detach() {
		t.Close()
	}
}

// SendControlMessage relays a control action for s over signaling.
func (r *Room) SendControlMessage(s *core.Stream, kind string, msg domain.ControlMessage) {
	id := s.ID()
	p := signalingParams{StreamID: id, Msg: controlEnvelope{Type: kind, Action: msg}}
	if err := r.signaler.Notify(methodSignaling, p); err != nil {
		r.logger(id).Error().Err(err).Str("type", kind).Msg("send control message")
	}
}

func (r *Room) addSink(id domain.StreamID, peer string, t core.Transport) {
	cs, ok := t.(candidateSink)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinks[id] == nil {
		r.sinks[id] = make(map[string]candidateSink)
	}
	r.sinks[id][peer] = cs
}

func (r *Room) removeSink(id domain.StreamID, peer string, t core.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cs, ok := r.sinks[id][peer]; ok && any(cs) == any(t) {
		delete(r.sinks[id], peer)
	}
}

// watch detaches t from s once the connection fails or closes.
func (r *Room) watch(s *core.Stream, id domain.StreamID, peer string, t core.Transport) {
	cn, ok := t.(closeNotifier)
	if !ok {
		return
	}
	cn.OnClosed(func() {
		r.removeSink(id, peer, t)
		if s.RemoveTransport(t) {
			r.logger(id).Warn().Str("peer", peer).Msg("transport closed, detached")
		}
	})
}

func (r *Room) sink(id domain.StreamID, peer string) (candidateSink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sinks[id][peer]
	return cs, ok
}

// Close unpublishes local streams and drops remote ones.
func (r *Room) Close() {
	for _, s := range r.registry.List() {
		if s.IsLocal() {
			s.Close()
			continue
		}
		r.removeRemote(s.ID())
	}
}

var _ core.Session = (*Room)(nil)
