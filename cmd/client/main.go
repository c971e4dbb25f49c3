package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/mediaflow/internal/adapters/http"
	"github.com/dkeye/mediaflow/internal/adapters/media"
	"github.com/dkeye/mediaflow/internal/adapters/render"
	"github.com/dkeye/mediaflow/internal/adapters/rtc"
	signaling "github.com/dkeye/mediaflow/internal/adapters/signal"
	"github.com/dkeye/mediaflow/internal/app"
	"github.com/dkeye/mediaflow/internal/config"
	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	sig, err := signaling.Dial(ctx, cfg.SignalURL, signaling.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to signaling")
	}
	defer sig.Close()

	renderer := render.NewDiskRenderer(cfg.RecordDir)
	factory := &rtc.Factory{
		Config:   webrtcConfig(cfg.ICEServers),
		Signaler: sig,
		Timeout:  cfg.RequestTimeout,
		Context:  ctx,
	}
	room := app.NewRoom(ctx, sig, factory, app.NewRegistry(), app.RoomConfig{
		P2P:            cfg.P2P,
		RequestTimeout: cfg.RequestTimeout,
		DataLimiter:    signaling.NewRateLimiter(cfg.DataRateLimit, cfg.DataRateWindow),
		StreamOptions:  []core.Option{core.WithRenderer(renderer)},
	})
	sig.OnNotification(room.HandleNotification)

	room.OnStreamAdded(func(s *core.Stream) {
		go recordRemote(ctx, room, s)
	})
	room.OnData(func(id domain.StreamID, msg json.RawMessage) {
		log.Info().Str("module", "main").Str("stream_id", string(id)).RawJSON("msg", msg).Msg("data")
	})

	if cfg.Publish.Enabled {
		if err := publishLocal(ctx, cfg, room); err != nil {
			log.Error().Err(err).Msg("failed to create local stream")
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router.SetupRouter(cfg, room),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("mediaflow client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	select {
	case <-ctx.Done():
	case <-sig.Done():
		log.Warn().Msg("signaling connection lost")
	}
	log.Info().Msg("Shutting down")
	room.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}

func webrtcConfig(servers []string) webrtc.Configuration {
	if len(servers) == 0 {
		return rtc.DefaultWebRTCConfig()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	}
}

func codecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}
	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}

// publishLocal captures the configured devices and publishes them once
// access is granted.
func publishLocal(ctx context.Context, cfg *config.Config, room *app.Room) error {
	codecs, err := codecSelector()
	if err != nil {
		return err
	}
	p := cfg.Publish
	s, err := core.New(core.Spec{
		Audio:          p.Audio,
		Video:          p.Video,
		Screen:         p.Screen,
		Data:           p.Data,
		URL:            p.URL,
		VideoSize:      p.VideoSize,
		VideoFrameRate: p.FrameRate,
		Attributes:     p.Attributes,
	}, core.WithAcquirer(media.NewAcquirer(codecs)))
	if err != nil {
		return err
	}

	s.On(core.EventAccessAccepted, func(core.Event) {
		go func() {
			if err := room.Publish(ctx, s); err != nil {
				log.Error().Err(err).Str("module", "main").Msg("publish failed")
				s.Close()
			}
		}()
	})
	s.On(core.EventAccessDenied, func(e core.Event) {
		log.Error().Err(e.Err()).Str("module", "main").Msg("access to local media denied")
	})
	s.On(core.EventStreamEnded, func(e core.Event) {
		log.Warn().Str("module", "main").Str("kind", string(e.TrackKind())).Msg("local track ended, closing stream")
		go s.Close()
	})
	s.Init(ctx)
	return nil
}

// recordRemote subscribes to a remote stream and records it to disk.
func recordRemote(ctx context.Context, room *app.Room, s *core.Stream) {
	opts := domain.Options{
		Audio: domain.Bool(s.HasAudio()),
		Video: domain.Bool(s.HasVideo() || s.HasScreen()),
	}
	if err := room.Subscribe(ctx, s, opts); err != nil {
		log.Error().Err(err).Str("module", "main").Str("stream_id", string(s.ID())).Msg("subscribe failed")
		return
	}
	if err := s.Play(string(s.ID()), nil); err != nil {
		log.Error().Err(err).Str("module", "main").Str("stream_id", string(s.ID())).Msg("record failed")
	}
}
