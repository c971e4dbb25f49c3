package core

import (
	"context"

	"github.com/dkeye/mediaflow/internal/domain"
)

// Track is one captured or received media track.
type Track interface {
	ID() string
	Kind() domain.TrackKind
	Enabled() bool
	SetEnabled(bool)
	// OnEnded replaces the end handler; nil removes it. The handler is called
	// at most once and never with adapter locks held.
	OnEnded(func())
	Stop() error
}

// MediaHandle groups the tracks a stream owns.
type MediaHandle interface {
	ID() string
	Tracks() []Track
}

// DeviceAcquirer requests local capture. Exactly one of onSuccess or
// onFailure is called, possibly from another goroutine.
type DeviceAcquirer interface {
	Acquire(ctx context.Context, c domain.MediaConstraints, onSuccess func(MediaHandle), onFailure func(error))
}

type PlayerOptions struct {
	StreamID domain.StreamID
	Target   string
	Kind     domain.TrackKind
	Handle   MediaHandle
	Options  map[string]any
}

// Renderer creates players bound to an output target.
type Renderer interface {
	NewPlayer(PlayerOptions) (Player, error)
}

type Player interface {
	Destroy() error
}

// TracksOfKind filters h's tracks. A nil handle has no tracks.
func TracksOfKind(h MediaHandle, kind domain.TrackKind) []Track {
	if h == nil {
		return nil
	}
	var out []Track
	for _, t := range h.Tracks() {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}
