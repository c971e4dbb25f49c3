package core

import "github.com/dkeye/mediaflow/internal/domain"

// Session coordinates publish/subscribe for the streams attached to it.
// Streams keep a non-owning reference.
type Session interface {
	// P2P reports a topology with one transport per remote peer.
	P2P() bool
	Unpublish(s *Stream)
	SendControlMessage(s *Stream, kind string, msg domain.ControlMessage)
}
