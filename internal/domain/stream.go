// Package domain contains entity without logic, just meta-data
package domain

import "maps"

// LocalStreamID is reported by local streams that have not been published yet.
const LocalStreamID StreamID = "local"

type StreamID string

type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

func (r Role) String() string {
	if r == RoleRemote {
		return "remote"
	}
	return "local"
}

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Capabilities are fixed when a stream is created. Muting never changes them.
type Capabilities struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
	Data   bool `json:"data"`
}

func (c Capabilities) HasMedia() bool {
	return c.Audio || c.Video || c.Screen
}

type Attributes map[string]any

// Clone returns a shallow copy, nil stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}
