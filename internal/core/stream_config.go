package core

import (
	"github.com/rs/zerolog"

	"github.com/dkeye/mediaflow/internal/domain"
)

// SanitizeOptions drops option changes the stream cannot honour. It never
// mutates o and returns the warnings it applied.
//
// On update the media type of an active stream cannot change, so any request
// to turn on audio, video or screen clears all three. When first subscribing
// to a remote stream, audio and video are forced off if the source lacks
// them. Slide show mode on a remote stream needs video.
func SanitizeOptions(o domain.Options, isUpdate, remote bool, caps domain.Capabilities) (domain.Options, []string) {
	out := o.Canonical()
	var warnings []string

	if isUpdate {
		if isTrue(out.Video) || isTrue(out.Audio) || isTrue(out.Screen) {
			warnings = append(warnings, "cannot update type of subscription")
			out.Video, out.Audio, out.Screen = nil, nil, nil
		}
	} else if remote {
		if isTrue(out.Video) && !caps.Video {
			warnings = append(warnings, "trying to subscribe to video when there is no video, won't subscribe to video")
			out.Video = domain.Bool(false)
		}
		if isTrue(out.Audio) && !caps.Audio {
			warnings = append(warnings, "trying to subscribe to audio when there is no audio, won't subscribe to audio")
			out.Audio = domain.Bool(false)
		}
	}

	if remote && !caps.Video && isTrue(out.SlideShowMode) {
		warnings = append(warnings, "cannot enable slideShowMode if it is not a video subscription")
		out.SlideShowMode = domain.Bool(false)
	}
	return out, warnings
}

func isTrue(b *bool) bool { return b != nil && *b }

// CheckOptions returns u sanitized against the stream's role and capabilities.
// Mute and quality layer deltas carry nothing to sanitize.
func (s *Stream) CheckOptions(u domain.Update, isUpdate bool) domain.Update {
	o, ok := u.(domain.Options)
	if !ok {
		return u
	}
	out, warnings := SanitizeOptions(o, isUpdate, !s.IsLocal(), s.caps)
	if len(warnings) > 0 {
		l := s.logger(s.ID())
		for _, w := range warnings {
			l.Warn().Msg(w)
		}
	}
	return out
}

func (s *Stream) p2p() bool {
	session := s.Session()
	return session != nil && session.P2P()
}

func (s *Stream) MuteAudio(muted bool, cb Callback) {
	s.mu.Lock()
	s.mutedAudio = muted
	s.mu.Unlock()
	s.applyMute(cb)
}

func (s *Stream) MuteVideo(muted bool, cb Callback) {
	s.mu.Lock()
	s.mutedVideo = muted
	s.mu.Unlock()
	s.applyMute(cb)
}

// applyMute toggles the owned tracks and tells the transport. Both audio and
// video tracks follow their mute flag.
func (s *Stream) applyMute(cb Callback) {
	l := s.logger(s.ID())
	if s.Closed() {
		cb.call(ErrStreamClosed)
		return
	}
	if s.p2p() {
		l.Warn().Msg("muteAudio/muteVideo are not implemented in p2p streams")
		cb.call(ErrP2PUnsupported)
		return
	}

	s.mu.RLock()
	h := s.handle
	update := domain.MuteUpdate{Audio: s.mutedAudio, Video: s.mutedVideo}
	s.mu.RUnlock()

	for _, t := range TracksOfKind(h, domain.TrackKindVideo) {
		t.SetEnabled(!update.Video)
	}
	for _, t := range TracksOfKind(h, domain.TrackKindAudio) {
		t.SetEnabled(!update.Audio)
	}

	s.sendUpdate(s.CheckOptions(update, true), cb, l)
}

// SetQualityLayer selects the simulcast/SVC layer received from the server.
func (s *Stream) SetQualityLayer(spatial, temporal int, cb Callback) {
	l := s.logger(s.ID())
	if s.Closed() {
		cb.call(ErrStreamClosed)
		return
	}
	if s.p2p() {
		l.Warn().Msg("setQualityLayer is not implemented in p2p streams")
		cb.call(ErrP2PUnsupported)
		return
	}
	update := domain.QualityLayerUpdate{SpatialLayer: spatial, TemporalLayer: temporal}
	s.sendUpdate(s.CheckOptions(update, true), cb, l)
}

func (s *Stream) sendUpdate(u domain.Update, cb Callback, l *zerolog.Logger) {
	transports := s.Transports()
	if len(transports) == 0 {
		l.Warn().Str("update", u.UpdateName()).Msg("no transport attached")
		cb.call(ErrNoTransport)
		return
	}
	transports[0].UpdateSpec(u, cb)
}

// UpdateConfiguration sends a generic update. Local streams in p2p sessions
// update every peer transport.
func (s *Stream) UpdateConfiguration(u domain.Update, cb Callback) {
	if u == nil {
		return
	}
	l := s.logger(s.ID())
	if s.Closed() {
		cb.call(ErrStreamClosed)
		return
	}
	transports := s.Transports()
	if len(transports) == 0 {
		cb.call(ErrNoTransport)
		return
	}

	u = s.CheckOptions(u, true)
	if s.IsLocal() && s.p2p() {
		l.Debug().Int("transports", len(transports)).Str("update", u.UpdateName()).Msg("updating every peer")
		for _, t := range transports {
			t.UpdateSpec(u, cb)
		}
		return
	}
	transports[0].UpdateSpec(u, cb)
}

func (s *Stream) EnableHandlers(handlers any, publisherSide ...bool) {
	s.controlHandlers(handlers, publisherSide, true)
}

func (s *Stream) DisableHandlers(handlers any, publisherSide ...bool) {
	s.controlHandlers(handlers, publisherSide, false)
}

// NormalizeHandlers accepts a single name or a list; anything else is empty.
func NormalizeHandlers(handlers any) []string {
	switch h := handlers.(type) {
	case string:
		return []string{h}
	case []string:
		return h
	default:
		return []string{}
	}
}

func (s *Stream) controlHandlers(handlers any, publisherSide []bool, enable bool) {
	list := NormalizeHandlers(handlers)
	if len(list) == 0 {
		return
	}
	msg := domain.ControlMessage{
		Name:          domain.ControlHandlersName,
		Enable:        enable,
		PublisherSide: len(publisherSide) > 0 && publisherSide[0],
		Handlers:      list,
	}
	session := s.Session()
	if session == nil {
		s.logger(s.ID()).Warn().Strs("handlers", list).Msg("control handlers need a session")
		return
	}
	session.SendControlMessage(s, "control", msg)
}
