package domain

const ControlHandlersName = "controlhandlers"

// ControlMessage toggles server side handlers attached to a stream.
type ControlMessage struct {
	Name          string   `json:"name"`
	Enable        bool     `json:"enable"`
	PublisherSide bool     `json:"publisherSide"`
	Handlers      []string `json:"handlers"`
}
