package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// SignalingMethod carries offers, answers, candidates and stream updates.
const SignalingMethod = "signaling_message"

// Signaler is the part of the signaling client a connection needs.
type Signaler interface {
	Request(ctx context.Context, method string, params, result any) error
	Notify(method string, params any) error
}

type signalingMessage struct {
	StreamID domain.StreamID `json:"streamId"`
	PeerID   string          `json:"peerSocket,omitempty"`
	Msg      any             `json:"msg"`
}

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMessage struct {
	Type      string                  `json:"type"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type updateMessage struct {
	Type   string        `json:"type"`
	Config domain.Update `json:"config"`
}

// Connection is one PeerConnection bound to a stream. It implements
// core.Transport: updates travel over signaling and are acknowledged there.
type Connection struct {
	pc       *webrtc.PeerConnection
	streamID domain.StreamID
	peerID   string
	signaler Signaler
	timeout  time.Duration

	mu       sync.Mutex
	onTrack  func(*RemoteTrack)
	onClosed func()
	done     bool

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewConnection creates the PeerConnection. peerID is empty unless the
// session is p2p.
func NewConnection(cfg webrtc.Configuration, streamID domain.StreamID, peerID string, sig Signaler, timeout time.Duration) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Connection{
		pc:       pc,
		streamID: streamID,
		peerID:   peerID,
		signaler: sig,
		timeout:  timeout,
	}, nil
}

func (c *Connection) logger() *zerolog.Logger {
	l := log.With().Str("module", "webrtc").Str("stream_id", string(c.streamID)).Logger()
	return &l
}

// Start installs the PeerConnection callbacks. The connection closes when
// ctx ends or ICE fails.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger().Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger().Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.closed()
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger().Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(NewRemoteTrack(track))
		}
	})

	go func() {
		<-ctx.Done()
		c.logger().Debug().Msg("connection context done")
		c.Close()
	}()
	return nil
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
	}
	return sender, nil
}

// AddRecvOnly prepares the connection to receive one track of kind.
func (c *Connection) AddRecvOnly(kind domain.TrackKind) error {
	_, err := c.pc.AddTransceiverFromKind(codecType(kind), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add %s transceiver: %w", kind, err)
	}
	return nil
}

// Negotiate sends a complete offer over signaling and applies the answer.
func (c *Connection) Negotiate(ctx context.Context) error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	var answer sdpMessage
	msg := c.message(sdpMessage{Type: "offer", SDP: c.pc.LocalDescription().SDP})
	if err := c.signaler.Request(ctx, SignalingMethod, msg, &answer); err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	c.logger().Info().Msg("negotiated")
	return nil
}

// AddRemoteCandidate applies a candidate message relayed by signaling.
func (c *Connection) AddRemoteCandidate(raw json.RawMessage) error {
	var m candidateMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(m.Candidate)
}

// UpdateSpec sends an already sanitized update and reports the server's
// acknowledgement to cb from another goroutine.
func (c *Connection) UpdateSpec(u domain.Update, cb core.Callback) {
	msg := c.message(updateMessage{Type: "updatestream", Config: u})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		err := c.signaler.Request(ctx, SignalingMethod, msg, nil)
		if err != nil {
			c.logger().Error().Err(err).Str("update", u.UpdateName()).Msg("update spec")
		}
		if cb != nil {
			cb(err)
		}
	}()
}

func (c *Connection) message(m any) signalingMessage {
	return signalingMessage{StreamID: c.streamID, PeerID: c.peerID, Msg: m}
}

func (c *Connection) OnTrack(fn func(*RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// OnClosed sets a callback run once when the connection fails or closes.
// It runs right away if that already happened.
func (c *Connection) OnClosed(fn func()) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
		return
	}
	c.onClosed = fn
	c.mu.Unlock()
}

func (c *Connection) closed() {
	c.mu.Lock()
	c.done = true
	fn := c.onClosed
	c.onClosed = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			c.logger().Error().Err(err).Msg("close error")
		} else {
			c.logger().Info().Msg("closed")
		}
		c.closed()
	})
}

func codecType(kind domain.TrackKind) webrtc.RTPCodecType {
	if kind == domain.TrackKindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// KindOf maps a pion codec type to a track kind.
func KindOf(t webrtc.RTPCodecType) domain.TrackKind {
	if t == webrtc.RTPCodecTypeAudio {
		return domain.TrackKindAudio
	}
	return domain.TrackKindVideo
}
