package core

import "errors"

var (
	ErrP2PUnsupported   = errors.New("not implemented in p2p streams")
	ErrNoTransport      = errors.New("this stream has no peerConnection attached, ignoring")
	ErrNoDeviceAcquirer = errors.New("no device acquirer configured")
	ErrStreamClosed     = errors.New("stream is closed")
	ErrNoRenderer       = errors.New("no renderer configured")
)
