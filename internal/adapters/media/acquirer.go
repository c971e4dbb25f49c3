package media

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// Acquirer captures local devices with pion/mediadevices. Drivers and
// encoders are registered by the binary through blank imports.
type Acquirer struct {
	codecs *mediadevices.CodecSelector
}

func NewAcquirer(codecs *mediadevices.CodecSelector) *Acquirer {
	return &Acquirer{codecs: codecs}
}

// Acquire runs capture on its own goroutine and reports through exactly one
// of the callbacks.
func (a *Acquirer) Acquire(ctx context.Context, c domain.MediaConstraints, onSuccess func(core.MediaHandle), onFailure func(error)) {
	go func() {
		if err := ctx.Err(); err != nil {
			onFailure(err)
			return
		}
		l := log.With().Str("module", "media").Bool("screen", c.Screen).Logger()
		if c.Fake {
			l.Debug().Msg("fake media requested, using registered drivers")
		}

		constraints := BuildConstraints(c, a.codecs)
		var (
			s   mediadevices.MediaStream
			err error
		)
		if c.Screen {
			s, err = mediadevices.GetDisplayMedia(constraints)
		} else {
			s, err = mediadevices.GetUserMedia(constraints)
		}
		if err != nil {
			l.Error().Err(err).Msg("get media")
			onFailure(fmt.Errorf("get media: %w", err))
			return
		}

		// A caller that gave up meanwhile does not get the devices.
		if err := ctx.Err(); err != nil {
			for _, t := range s.GetTracks() {
				_ = t.Close()
			}
			onFailure(err)
			return
		}

		h := NewHandle(uuid.NewString(), s.GetTracks())
		l.Info().Str("handle_id", h.ID()).Int("tracks", len(h.tracks)).Msg("media acquired")
		onSuccess(h)
	}()
}

// BuildConstraints maps stream constraints onto mediadevices options. Audio
// and video options are only set for the kinds requested.
func BuildConstraints(c domain.MediaConstraints, codecs *mediadevices.CodecSelector) mediadevices.MediaStreamConstraints {
	out := mediadevices.MediaStreamConstraints{Codec: codecs}
	if c.Audio && !c.Screen {
		out.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}
	if c.Video {
		size, rate := c.Size, c.FrameRate
		out.Video = func(mc *mediadevices.MediaTrackConstraints) {
			if size != nil {
				mc.Width = prop.IntRanged{Min: size.MinWidth, Max: size.MaxWidth}
				mc.Height = prop.IntRanged{Min: size.MinHeight, Max: size.MaxHeight}
			}
			if rate != nil {
				mc.FrameRate = prop.FloatRanged{Min: rate.Min, Max: rate.Max}
			}
		}
	}
	return out
}

var _ core.DeviceAcquirer = (*Acquirer)(nil)
