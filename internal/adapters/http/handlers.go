package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/mediaflow/internal/app"
	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

const streamKey = "stream"

var errTimeout = errors.New("timed out waiting for the server")

type StreamView struct {
	ID           domain.StreamID     `json:"id"`
	Role         string              `json:"role"`
	Capabilities domain.Capabilities `json:"capabilities"`
	External     bool                `json:"external"`
	AudioMuted   bool                `json:"audioMuted"`
	VideoMuted   bool                `json:"videoMuted"`
	Attributes   domain.Attributes   `json:"attributes,omitempty"`
	Transports   int                 `json:"transports"`
	Showing      bool                `json:"showing"`
	Target       string              `json:"target,omitempty"`
	Closed       bool                `json:"closed"`
}

func viewOf(s *core.Stream) StreamView {
	return StreamView{
		ID:           s.ID(),
		Role:         s.Role().String(),
		Capabilities: s.Capabilities(),
		External:     s.IsExternal(),
		AudioMuted:   s.AudioMuted(),
		VideoMuted:   s.VideoMuted(),
		Attributes:   s.Attributes(),
		Transports:   len(s.Transports()),
		Showing:      s.Showing(),
		Target:       s.Target(),
		Closed:       s.Closed(),
	}
}

type MuteRequest struct {
	Audio *bool `json:"audio"`
	Video *bool `json:"video"`
}

type QualityRequest struct {
	SpatialLayer  int `json:"spatialLayer"`
	TemporalLayer int `json:"temporalLayer"`
}

type HandlersRequest struct {
	Handlers      []string `json:"handlers"`
	Enable        bool     `json:"enable"`
	PublisherSide bool     `json:"publisherSide"`
}

type AttributesRequest struct {
	Attributes domain.Attributes `json:"attributes"`
}

type DataRequest struct {
	Msg any `json:"msg"`
}

type PlayRequest struct {
	Target  string         `json:"target"`
	Options map[string]any `json:"options"`
}

type handlers struct {
	rooms   Rooms
	timeout time.Duration
}

func (h *handlers) registry() *app.Registry { return h.rooms.Registry() }

func (h *handlers) lookup(c *gin.Context) {
	s, ok := h.registry().Get(domain.StreamID(c.Param("id")))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown stream"})
		return
	}
	c.Set(streamKey, s)
	c.Next()
}

func streamOf(c *gin.Context) *core.Stream {
	return c.MustGet(streamKey).(*core.Stream)
}

func (h *handlers) list(c *gin.Context) {
	streams := h.registry().List()
	out := make([]StreamView, 0, len(streams))
	for _, s := range streams {
		out = append(out, viewOf(s))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) get(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(streamOf(c)))
}

// await runs op and waits for its first callback.
func (h *handlers) await(op func(core.Callback)) error {
	done := make(chan error, 1)
	op(func(err error) {
		select {
		case done <- err:
		default:
		}
	})
	select {
	case err := <-done:
		return err
	case <-time.After(h.timeout):
		return errTimeout
	}
}

func (h *handlers) reply(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, viewOf(streamOf(c)))
		return
	}
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrNoTransport), errors.Is(err, app.ErrAlreadyBound), errors.Is(err, app.ErrUnknownStream):
		return http.StatusConflict
	case errors.Is(err, core.ErrP2PUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, core.ErrStreamClosed):
		return http.StatusGone
	case errors.Is(err, app.ErrNotLocal), errors.Is(err, app.ErrNotRemote), errors.Is(err, core.ErrNoRenderer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *handlers) mute(c *gin.Context) {
	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Audio == nil && req.Video == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid mute state"})
		return
	}
	s := streamOf(c)
	if req.Audio != nil {
		if err := h.await(func(cb core.Callback) { s.MuteAudio(*req.Audio, cb) }); err != nil {
			h.reply(c, err)
			return
		}
	}
	if req.Video != nil {
		if err := h.await(func(cb core.Callback) { s.MuteVideo(*req.Video, cb) }); err != nil {
			h.reply(c, err)
			return
		}
	}
	h.reply(c, nil)
}

func (h *handlers) quality(c *gin.Context) {
	var req QualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid layers"})
		return
	}
	s := streamOf(c)
	h.reply(c, h.await(func(cb core.Callback) { s.SetQualityLayer(req.SpatialLayer, req.TemporalLayer, cb) }))
}

func (h *handlers) controlHandlers(c *gin.Context) {
	var req HandlersRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Handlers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid handlers"})
		return
	}
	s := streamOf(c)
	if req.Enable {
		s.EnableHandlers(req.Handlers, req.PublisherSide)
	} else {
		s.DisableHandlers(req.Handlers, req.PublisherSide)
	}
	c.Status(http.StatusAccepted)
}

func (h *handlers) attributes(c *gin.Context) {
	var req AttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid attributes"})
		return
	}
	s := streamOf(c)
	if !s.IsLocal() {
		h.reply(c, app.ErrNotLocal)
		return
	}
	s.SetAttributes(req.Attributes)
	c.Status(http.StatusAccepted)
}

func (h *handlers) configuration(c *gin.Context) {
	var opts domain.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid options"})
		return
	}
	s := streamOf(c)
	h.reply(c, h.await(func(cb core.Callback) { s.UpdateConfiguration(opts, cb) }))
}

func (h *handlers) data(c *gin.Context) {
	var req DataRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Msg == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid message"})
		return
	}
	s := streamOf(c)
	if !s.IsLocal() || !s.HasData() {
		h.reply(c, app.ErrNotLocal)
		return
	}
	s.SendData(req.Msg)
	c.Status(http.StatusAccepted)
}

func (h *handlers) subscribe(c *gin.Context) {
	var opts domain.Options
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid options"})
			return
		}
	}
	h.reply(c, h.rooms.Subscribe(c.Request.Context(), streamOf(c), opts))
}

func (h *handlers) unsubscribe(c *gin.Context) {
	h.reply(c, h.rooms.Unsubscribe(streamOf(c)))
}

func (h *handlers) play(c *gin.Context) {
	var req PlayRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid target"})
			return
		}
	}
	h.reply(c, streamOf(c).Play(req.Target, req.Options))
}

func (h *handlers) stop(c *gin.Context) {
	streamOf(c).Stop()
	h.reply(c, nil)
}
