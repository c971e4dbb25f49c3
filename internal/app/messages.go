package app

import (
	"encoding/json"

	"github.com/dkeye/mediaflow/internal/domain"
)

// Signaling methods sent by the client.
const (
	methodPublish          = "publish"
	methodUnpublish        = "unpublish"
	methodSubscribe        = "subscribe"
	methodUnsubscribe      = "unsubscribe"
	methodUpdateAttributes = "updateStreamAttributes"
	methodSendData         = "sendDataStream"
	methodSignaling        = "signaling_message"
)

// Notifications pushed by the server.
const (
	NotifyAddStream        = "onAddStream"
	NotifyRemoveStream     = "onRemoveStream"
	NotifyUpdateAttributes = "onUpdateAttributeStream"
	NotifyDataStream       = "onDataStream"
	NotifyPublishMe        = "publish_me"
	NotifySignaling        = "signaling_message_erizo"
)

type muteState struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

type publishRequest struct {
	State      string            `json:"state"`
	Audio      bool              `json:"audio"`
	Video      bool              `json:"video"`
	Screen     bool              `json:"screen"`
	Data       bool              `json:"data"`
	URL        string            `json:"url,omitempty"`
	Recording  string            `json:"recording,omitempty"`
	Attributes domain.Attributes `json:"attributes,omitempty"`
	MuteStream muteState         `json:"muteStream"`
}

type publishResponse struct {
	ID domain.StreamID `json:"id"`
}

type streamRef struct {
	ID domain.StreamID `json:"id"`
}

type streamInfo struct {
	ID         domain.StreamID   `json:"id"`
	Audio      bool              `json:"audio"`
	Video      bool              `json:"video"`
	Screen     bool              `json:"screen"`
	Data       bool              `json:"data"`
	Attributes domain.Attributes `json:"attributes,omitempty"`
}

type attributesMessage struct {
	ID    domain.StreamID   `json:"id"`
	Attrs domain.Attributes `json:"attrs"`
}

type dataMessage struct {
	ID  domain.StreamID `json:"id"`
	Msg any             `json:"msg"`
}

type inboundData struct {
	ID  domain.StreamID `json:"id"`
	Msg json.RawMessage `json:"msg"`
}

type controlEnvelope struct {
	Type   string                `json:"type"`
	Action domain.ControlMessage `json:"action"`
}

type signalingParams struct {
	StreamID domain.StreamID `json:"streamId"`
	Msg      any             `json:"msg"`
}

type peerRequest struct {
	StreamID   domain.StreamID `json:"streamId"`
	PeerSocket string          `json:"peerSocket"`
}

type inboundSignaling struct {
	StreamID   domain.StreamID `json:"streamId"`
	PeerSocket string          `json:"peerSocket,omitempty"`
	Mess       json.RawMessage `json:"mess"`
}

// subscribeParams flattens the sanitized options next to the stream id.
func subscribeParams(id domain.StreamID, opts domain.Options) (map[string]any, error) {
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any)
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, err
	}
	params["streamId"] = id
	return params, nil
}
