package core

import "github.com/dkeye/mediaflow/internal/domain"

type EventKind string

const (
	EventAccessAccepted EventKind = "access-accepted"
	EventAccessDenied   EventKind = "access-denied"
	EventStreamEnded    EventKind = "stream-ended"
	// Internal kinds are observed by the session, not by applications.
	EventSetAttributes EventKind = "internal-set-attributes"
	EventSendData      EventKind = "internal-send-data"
)

// Event describes something that happened to a stream. Values are immutable;
// accessors return copies of reference payloads.
type Event struct {
	kind     EventKind
	streamID domain.StreamID

	err       error
	trackKind domain.TrackKind
	attrs     domain.Attributes
	msg       any
}

func (e Event) Kind() EventKind               { return e.kind }
func (e Event) StreamID() domain.StreamID     { return e.streamID }
func (e Event) Err() error                    { return e.err }
func (e Event) TrackKind() domain.TrackKind   { return e.trackKind }
func (e Event) Attributes() domain.Attributes { return e.attrs.Clone() }
func (e Event) Message() any                  { return e.msg }

func NewAccessAccepted(id domain.StreamID) Event {
	return Event{kind: EventAccessAccepted, streamID: id}
}

func NewAccessDenied(id domain.StreamID, err error) Event {
	return Event{kind: EventAccessDenied, streamID: id, err: err}
}

// NewStreamEnded reports which kind of track ended first.
func NewStreamEnded(id domain.StreamID, kind domain.TrackKind) Event {
	return Event{kind: EventStreamEnded, streamID: id, trackKind: kind}
}

func NewSetAttributes(id domain.StreamID, attrs domain.Attributes) Event {
	return Event{kind: EventSetAttributes, streamID: id, attrs: attrs.Clone()}
}

func NewSendData(id domain.StreamID, msg any) Event {
	return Event{kind: EventSendData, streamID: id, msg: msg}
}
