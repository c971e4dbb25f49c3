package domain

import (
	"encoding/json"
	"maps"
)

// Update is a configuration delta sent to a transport. The set of
// implementations is closed: MuteUpdate, QualityLayerUpdate and Options.
type Update interface {
	UpdateName() string
	isUpdate()
}

type MuteUpdate struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

func (MuteUpdate) UpdateName() string { return "muteStream" }
func (MuteUpdate) isUpdate()          {}

func (u MuteUpdate) MarshalJSON() ([]byte, error) {
	type payload MuteUpdate
	return json.Marshal(map[string]payload{"muteStream": payload(u)})
}

type QualityLayerUpdate struct {
	SpatialLayer  int `json:"spatialLayer"`
	TemporalLayer int `json:"temporalLayer"`
}

func (QualityLayerUpdate) UpdateName() string { return "qualityLayer" }
func (QualityLayerUpdate) isUpdate()          {}

func (u QualityLayerUpdate) MarshalJSON() ([]byte, error) {
	type payload QualityLayerUpdate
	return json.Marshal(map[string]payload{"qualityLayer": payload(u)})
}

// Options is a generic subscribe/publish/update request. A nil field was not
// requested.
type Options struct {
	Audio         *bool `json:"audio,omitempty"`
	Video         *bool `json:"video,omitempty"`
	Screen        *bool `json:"screen,omitempty"`
	SlideShowMode *bool `json:"slideShowMode,omitempty"`
	MaxVideoBW    *int  `json:"maxVideoBW,omitempty"`
	MinVideoBW    *int  `json:"minVideoBW,omitempty"`

	// Extra carries keys the client does not interpret. Known keys found
	// here are folded into the typed fields by Canonical.
	Extra map[string]any `json:"-"`
}

func (Options) UpdateName() string { return "options" }
func (Options) isUpdate()          {}

// Clone copies every pointer so the result shares nothing with o.
func (o Options) Clone() Options {
	out := Options{
		Audio:         cloneBool(o.Audio),
		Video:         cloneBool(o.Video),
		Screen:        cloneBool(o.Screen),
		SlideShowMode: cloneBool(o.SlideShowMode),
		MaxVideoBW:    cloneInt(o.MaxVideoBW),
		MinVideoBW:    cloneInt(o.MinVideoBW),
	}
	if o.Extra != nil {
		out.Extra = maps.Clone(o.Extra)
	}
	return out
}

// Canonical moves known keys out of Extra into the typed fields. A typed
// field already set wins, and a value of the wrong type is dropped.
func (o Options) Canonical() Options {
	out := o.Clone()
	if len(out.Extra) == 0 {
		return out
	}
	for _, key := range optionKeys {
		v, ok := out.Extra[key]
		if !ok {
			continue
		}
		delete(out.Extra, key)
		switch key {
		case "audio":
			out.Audio = foldBool(out.Audio, v)
		case "video":
			out.Video = foldBool(out.Video, v)
		case "screen":
			out.Screen = foldBool(out.Screen, v)
		case "slideShowMode":
			out.SlideShowMode = foldBool(out.SlideShowMode, v)
		case "maxVideoBW":
			out.MaxVideoBW = foldInt(out.MaxVideoBW, v)
		case "minVideoBW":
			out.MinVideoBW = foldInt(out.MinVideoBW, v)
		}
	}
	if len(out.Extra) == 0 {
		out.Extra = nil
	}
	return out
}

func foldBool(cur *bool, v any) *bool {
	if cur != nil {
		return cur
	}
	if b, ok := v.(bool); ok {
		return Bool(b)
	}
	return nil
}

func foldInt(cur *int, v any) *int {
	if cur != nil {
		return cur
	}
	switch n := v.(type) {
	case int:
		return Int(n)
	case float64:
		return Int(int(n))
	}
	return nil
}

func (o Options) MarshalJSON() ([]byte, error) {
	o = o.Canonical()
	type known Options
	b, err := json.Marshal(known(o))
	if err != nil {
		return nil, err
	}
	if len(o.Extra) == 0 {
		return b, nil
	}
	merged := make(map[string]any, len(o.Extra)+4)
	maps.Copy(merged, o.Extra)
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	maps.Copy(merged, fields)
	return json.Marshal(merged)
}

// UnmarshalJSON fills the known fields and keeps every other key in Extra.
func (o *Options) UnmarshalJSON(b []byte) error {
	type known Options
	var k known
	if err := json.Unmarshal(b, &k); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, key := range optionKeys {
		delete(all, key)
	}
	*o = Options(k)
	if len(all) > 0 {
		o.Extra = all
	}
	return nil
}

var optionKeys = []string{"audio", "video", "screen", "slideShowMode", "maxVideoBW", "minVideoBW"}

// Bool and Int build option fields inline.
func Bool(b bool) *bool { return &b }
func Int(i int) *int    { return &i }

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	return Bool(*b)
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	return Int(*i)
}
