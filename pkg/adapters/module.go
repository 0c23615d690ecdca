package adapters

import (
	"sync"

	"github.com/brookwillow/kiwi/pkg/bus"
)

// Module is the uniform adapter lifecycle contract. The controller drives
// Initialize/Start in registration order and Stop/Cleanup in reverse.
type Module interface {
	Name() string
	Initialize() error
	Start() error
	Stop()
	Cleanup()
	HandleEvent(ev bus.Event)
	Running() bool
	Statistics() map[string]any
}

// stats is the shared counter block every adapter embeds.
type stats struct {
	mu        sync.Mutex
	processed int
	errors    int
	latencyMS float64 // cumulative, for the average in Statistics
	samples   int
}

func (s *stats) countProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

func (s *stats) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *stats) observeLatency(ms float64) {
	s.mu.Lock()
	s.latencyMS += ms
	s.samples++
	s.mu.Unlock()
}

func (s *stats) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{
		"events_processed": s.processed,
		"errors":           s.errors,
	}
	if s.samples > 0 {
		out["avg_latency_ms"] = s.latencyMS / float64(s.samples)
	}
	return out
}
