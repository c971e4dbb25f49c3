package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/mediaflow/internal/core"
	"github.com/dkeye/mediaflow/internal/domain"
)

// Registry indexes the local and remote streams of a room by id.
type Registry struct {
	mu      sync.RWMutex
	streams map[domain.StreamID]*core.Stream
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[domain.StreamID]*core.Stream)}
}

// Add stores s under its current id and reports false when the id is taken.
func (r *Registry) Add(s *core.Stream) bool {
	id := s.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[id]; ok {
		return false
	}
	r.streams[id] = s
	log.Info().Str("module", "app.registry").Str("stream_id", string(id)).Str("role", s.Role().String()).Msg("added stream")
	return true
}

func (r *Registry) Get(id domain.StreamID) (*core.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	return s, ok
}

func (r *Registry) Remove(id domain.StreamID) (*core.Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	delete(r.streams, id)
	log.Info().Str("module", "app.registry").Str("stream_id", string(id)).Msg("removed stream")
	return s, true
}

// List returns the streams ordered by id.
func (r *Registry) List() []*core.Stream {
	r.mu.RLock()
	out := make([]*core.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
