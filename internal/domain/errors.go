package domain

import "errors"

var (
	ErrInvalidVideoSize = errors.New("invalid video size")
	ErrInvalidFrameRate = errors.New("invalid video frame rate")
)
