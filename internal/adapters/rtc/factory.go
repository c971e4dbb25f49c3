package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// LocalTrack is a captured track that can be sent over a PeerConnection.
type LocalTrack interface {
	Local() webrtc.TrackLocal
}

// Factory builds negotiated connections for streams of a room.
type Factory struct {
	Config   webrtc.Configuration
	Signaler Signaler
	Timeout  time.Duration

	// Context bounds the lifetime of every connection. The ctx passed to
	// Publish and Subscribe only bounds negotiation.
	Context context.Context
}

func (f *Factory) lifetime() context.Context {
	if f.Context == nil {
		return context.Background()
	}
	return f.Context
}

// Publish sends the stream's local tracks. peerID selects the remote peer in
// p2p sessions and is empty otherwise.
func (f *Factory) Publish(ctx context.Context, s *core.Stream, peerID string) (core.Transport, error) {
	conn, err := NewConnection(f.Config, s.ID(), peerID, f.Signaler, f.Timeout)
	if err != nil {
		return nil, err
	}
	if err := conn.Start(f.lifetime()); err != nil {
		conn.Close()
		return nil, err
	}

	if h := s.MediaHandle(); h != nil {
		for _, t := range h.Tracks() {
			lt, ok := t.(LocalTrack)
			if !ok {
				log.Warn().Str("module", "rtc.factory").Str("track_id", t.ID()).Msg("track cannot be sent, skipping")
				continue
			}
			if _, err := conn.AddLocalTrack(lt.Local()); err != nil {
				conn.Close()
				return nil, err
			}
		}
	}
	if s.HasData() {
		if _, err := conn.pc.CreateDataChannel("data", nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
	}

	if err := conn.Negotiate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Subscribe receives the remote stream's tracks. Each arriving track is added
// to a handle the stream adopts.
func (f *Factory) Subscribe(ctx context.Context, s *core.Stream) (core.Transport, error) {
	conn, err := NewConnection(f.Config, s.ID(), "", f.Signaler, f.Timeout)
	if err != nil {
		return nil, err
	}

	// The stream owns the handle from the start so players can pick up
	// tracks as they arrive.
	handle := NewRemoteHandle(string(s.ID()))
	s.AdoptMediaHandle(handle)
	conn.OnTrack(func(t *RemoteTrack) {
		handle.Add(t)
		s.AdoptMediaHandle(handle)
	})
	if err := conn.Start(f.lifetime()); err != nil {
		conn.Close()
		return nil, err
	}

	if s.HasAudio() {
		if err := conn.AddRecvOnly(domain.TrackKindAudio); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if s.HasVideo() || s.HasScreen() {
		if err := conn.AddRecvOnly(domain.TrackKindVideo); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if err := conn.Negotiate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

var _ core.Transport = (*Connection)(nil)
