// Package render records remote streams to disk in place of a screen.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
)

// PacketReader is a track whose RTP packets can be read, such as a received
// remote track.
type PacketReader interface {
	ReadPacket() (*rtp.Packet, error)
	MimeType() string
}

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// DiskRenderer writes VP8 tracks to .ivf and Opus tracks to .ogg files.
type DiskRenderer struct {
	dir  string
	scan time.Duration
}

func NewDiskRenderer(dir string) *DiskRenderer {
	return &DiskRenderer{dir: dir, scan: 500 * time.Millisecond}
}

// NewPlayer records every readable track of the handle, including tracks
// that arrive after the player is created. The target names the files; the
// stream id is used when it is empty.
func (r *DiskRenderer) NewPlayer(opts core.PlayerOptions) (core.Player, error) {
	if opts.Handle == nil {
		return nil, errors.New("render: stream has no media")
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	name := opts.Target
	if name == "" {
		name = string(opts.StreamID)
	}
	p := &diskPlayer{
		base:      filepath.Join(r.dir, filepath.Base(name)),
		handle:    opts.Handle,
		recorders: make(map[string]*recorder),
		done:      make(chan struct{}),
	}
	p.attach()
	p.wg.Add(1)
	go p.watch(r.scan)
	return p, nil
}

type diskPlayer struct {
	base   string
	handle core.MediaHandle

	mu        sync.Mutex
	recorders map[string]*recorder
	wg        sync.WaitGroup
	done      chan struct{}
	once      sync.Once
}

func (p *diskPlayer) watch(every time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.attach()
		}
	}
}

func (p *diskPlayer) attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}

	for _, t := range p.handle.Tracks() {
		if _, ok := p.recorders[t.ID()]; ok {
			continue
		}
		pr, ok := t.(PacketReader)
		if !ok {
			p.recorders[t.ID()] = nil
			log.Debug().Str("module", "render").Str("track_id", t.ID()).Msg("track is not readable, skipping")
			continue
		}
		w, path, err := p.open(pr.MimeType(), t.ID())
		if err != nil {
			p.recorders[t.ID()] = nil
			log.Warn().Err(err).Str("module", "render").Str("track_id", t.ID()).Msg("cannot record track")
			continue
		}
		rec := &recorder{track: t, reader: pr, writer: w}
		p.recorders[t.ID()] = rec
		log.Info().Str("module", "render").Str("track_id", t.ID()).Str("path", path).Msg("recording")
		go rec.run()
	}
}

func (p *diskPlayer) open(mime, trackID string) (rtpWriter, string, error) {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		path := fmt.Sprintf("%s-%s.ivf", p.base, trackID)
		w, err := ivfwriter.New(path)
		return w, path, err
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		path := fmt.Sprintf("%s-%s.ogg", p.base, trackID)
		w, err := oggwriter.New(path, 48000, 2)
		return w, path, err
	default:
		return nil, "", fmt.Errorf("unsupported codec %q", mime)
	}
}

// Destroy closes every file. Readers blocked on the network exit on their
// next packet.
func (p *diskPlayer) Destroy() error {
	var errs []error
	p.once.Do(func() {
		p.mu.Lock()
		close(p.done)
		for _, rec := range p.recorders {
			if rec == nil {
				continue
			}
			if err := rec.close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
	return errors.Join(errs...)
}

type recorder struct {
	track  core.Track
	reader PacketReader

	mu     sync.Mutex
	writer rtpWriter
	closed bool
}

func (r *recorder) run() {
	for {
		pkt, err := r.reader.ReadPacket()
		if err != nil {
			log.Debug().Err(err).Str("module", "render").Str("track_id", r.track.ID()).Msg("track read done")
			_ = r.close()
			return
		}
		if !r.write(pkt) {
			return
		}
	}
}

// write reports false once the recorder is closed.
func (r *recorder) write(pkt *rtp.Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if !r.track.Enabled() || len(pkt.Payload) < 4 {
		return true
	}
	if err := r.writer.WriteRTP(pkt); err != nil {
		log.Warn().Err(err).Str("module", "render").Str("track_id", r.track.ID()).Msg("write packet")
	}
	return true
}

func (r *recorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.writer.Close()
}

var _ core.Renderer = (*DiskRenderer)(nil)
