package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/app"
	"github.com/dkeye/mediaflow/internal/config"
	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// Rooms is what the control API needs from the room.
type Rooms interface {
	Registry() *app.Registry
	Subscribe(ctx context.Context, s *core.Stream, opts domain.Options) error
	Unsubscribe(s *core.Stream) error
}

func SetupRouter(cfg *config.Config, rooms Rooms) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := &handlers{rooms: rooms, timeout: timeout}

	api := r.Group("/api")
	api.GET("/streams", h.list)

	stream := api.Group("/streams/:id", h.lookup)
	stream.GET("", h.get)
	stream.POST("/mute", h.mute)
	stream.POST("/quality", h.quality)
	stream.POST("/handlers", h.controlHandlers)
	stream.PUT("/attributes", h.attributes)
	stream.POST("/configuration", h.configuration)
	stream.POST("/data", h.data)
	stream.POST("/subscription", h.subscribe)
	stream.DELETE("/subscription", h.unsubscribe)
	stream.POST("/player", h.play)
	stream.DELETE("/player", h.stop)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
