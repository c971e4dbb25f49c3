package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// HandleNotification dispatches a server notification. It matches the
// signaling client's notification handler.
func (r *Room) HandleNotification(method string, params json.RawMessage) {
	switch method {
	case NotifyAddStream:
		var m streamInfo
		if decode(method, params, &m) {
			r.addRemote(m)
		}
	case NotifyRemoveStream:
		var m streamRef
		if decode(method, params, &m) {
			r.removeRemote(m.ID)
		}
	case NotifyUpdateAttributes:
		var m attributesMessage
		if decode(method, params, &m) {
			r.updateRemoteAttributes(m)
		}
	case NotifyDataStream:
		var m inboundData
		if decode(method, params, &m) {
			r.mu.Lock()
			fn := r.onData
			r.mu.Unlock()
			if fn != nil {
				fn(m.ID, m.Msg)
			}
		}
	case NotifyPublishMe:
		var m peerRequest
		if decode(method, params, &m) {
			go r.publishToPeer(m)
		}
	case NotifySignaling:
		var m inboundSignaling
		if decode(method, params, &m) {
			r.relaySignaling(m)
		}
	default:
		log.Debug().Str("module", "app.room").Str("method", method).Msg("unhandled notification")
	}
}

func decode(method string, params json.RawMessage, v any) bool {
	if err := json.Unmarshal(params, v); err != nil {
		log.Error().Err(err).Str("module", "app.room").Str("method", method).Msg("bad notification")
		return false
	}
	return true
}

func (r *Room) addRemote(m streamInfo) {
	if m.ID == "" {
		return
	}
	if _, ok := r.registry.Get(m.ID); ok {
		r.logger(m.ID).Debug().Msg("stream already known")
		return
	}
	local := false
	s, err := core.New(core.Spec{
		StreamID:   m.ID,
		Audio:      m.Audio,
		Video:      m.Video,
		Screen:     m.Screen,
		Data:       m.Data,
		Attributes: m.Attributes,
		Local:      &local,
	}, r.cfg.StreamOptions...)
	if err != nil {
		r.logger(m.ID).Error().Err(err).Msg("create remote stream")
		return
	}
	if !r.registry.Add(s) {
		return
	}

	r.mu.Lock()
	fn := r.onAdded
	r.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (r *Room) removeRemote(id domain.StreamID) {
	s, ok := r.registry.Get(id)
	if !ok || s.IsLocal() {
		return
	}
	if r.forgetSubscription(id) {
		r.release(s)
	}
	r.registry.Remove(id)

	r.mu.Lock()
	fn := r.onRemoved
	r.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (r *Room) updateRemoteAttributes(m attributesMessage) {
	s, ok := r.registry.Get(m.ID)
	if !ok || s.IsLocal() {
		return
	}
	s.UpdateLocalAttributes(m.Attrs)
}

// publishToPeer opens a dedicated connection for a peer that asked for one
// of our streams in a p2p room.
func (r *Room) publishToPeer(m peerRequest) {
	l := r.logger(m.StreamID)
	s, ok := r.registry.Get(m.StreamID)
	if !ok || !s.IsLocal() {
		l.Warn().Str("peer", m.PeerSocket).Msg("publish_me for unknown stream")
		return
	}
	t, err := r.factory.Publish(r.ctx, s, m.PeerSocket)
	if err != nil {
		l.Error().Err(err).Str("peer", m.PeerSocket).Msg("publish to peer")
		return
	}
	r.addSink(m.StreamID, m.PeerSocket, t)
	if !s.AddTransport(t) {
		l.Warn().Str("peer", m.PeerSocket).Msg("stream gone during negotiation, closing connection")
		r.removeSink(m.StreamID, m.PeerSocket, t)
		t.Close()
		return
	}
	r.watch(s, m.StreamID, m.PeerSocket, t)
	l.Info().Str("peer", m.PeerSocket).Msg("published to peer")
}

func (r *Room) relaySignaling(m inboundSignaling) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(m.Mess, &head); err != nil || head.Type != "candidate" {
		r.logger(m.StreamID).Debug().Str("type", head.Type).Msg("ignored signaling message")
		return
	}
	cs, ok := r.sink(m.StreamID, m.PeerSocket)
	if !ok {
		r.logger(m.StreamID).Warn().Str("peer", m.PeerSocket).Msg("candidate for unknown connection")
		return
	}
	if err := cs.AddRemoteCandidate(m.Mess); err != nil {
		r.logger(m.StreamID).Error().Err(err).Msg("add remote candidate")
	}
}
