package app

import "errors"

var (
	ErrNotLocal       = errors.New("stream is not local")
	ErrNotRemote      = errors.New("stream is not remote")
	ErrNotInitialized = errors.New("stream has no media yet, call Init first")
	ErrUnknownStream  = errors.New("unknown stream")
	ErrAlreadyBound   = errors.New("stream already published or subscribed")
)
