package core

import (
	"github.com/dkeye/mediaflow/internal/domain"
)

// Play binds the stream to a render target. Video and screen streams need a
// target; audio-only streams play without one.
func (s *Stream) Play(target string, opts map[string]any) error {
	id := s.ID()
	if s.Closed() {
		return ErrStreamClosed
	}
	if s.renderer == nil {
		s.logger(id).Warn().Msg("play: no renderer configured")
		return ErrNoRenderer
	}

	var kind domain.TrackKind
	switch {
	case s.caps.Video || s.caps.Screen:
		if target == "" {
			return nil
		}
		kind = domain.TrackKindVideo
	case s.caps.Audio:
		kind = domain.TrackKindAudio
	default:
		return nil
	}

	s.Stop()
	p, err := s.renderer.NewPlayer(PlayerOptions{
		StreamID: id,
		Target:   target,
		Kind:     kind,
		Handle:   s.MediaHandle(),
		Options:  opts,
	})
	if err != nil {
		s.logger(id).Error().Err(err).Str("target", target).Msg("play")
		return err
	}

	s.mu.Lock()
	s.player = p
	s.target = target
	s.mu.Unlock()
	return nil
}

// Show is an alias of Play.
func (s *Stream) Show(target string, opts map[string]any) error { return s.Play(target, opts) }

// Stop releases the player, if any.
func (s *Stream) Stop() {
	s.mu.Lock()
	p := s.player
	s.player = nil
	s.target = ""
	s.mu.Unlock()

	if p == nil {
		return
	}
	if err := p.Destroy(); err != nil {
		s.logger(s.ID()).Warn().Err(err).Msg("destroy player")
	}
}

// Hide is an alias of Stop.
func (s *Stream) Hide() { s.Stop() }

// Showing is true while the stream owns a player.
func (s *Stream) Showing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player != nil
}

func (s *Stream) Target() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}
