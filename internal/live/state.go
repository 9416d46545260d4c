// Package live buffers readings arriving from a publish/subscribe feed while
// live mode is enabled.
package live

import (
	"sync"

	"github.com/jgoulah/ampdash/pkg/models"
	"github.com/jgoulah/ampdash/pkg/ringbuf"
)

// DefaultBufferSize is the number of live readings kept when unconfigured
const DefaultBufferSize = 100

// Observer is notified whenever a reading is buffered
type Observer interface {
	LiveReading(buffered int)
}

// State owns the live-mode toggle and the bounded reading buffer
type State struct {
	mu      sync.Mutex
	enabled bool
	buf     *ringbuf.Ring[models.Reading]
	subs    map[chan models.Reading]struct{}
	obs     Observer
}

// NewState creates a disabled live state keeping at most size readings
func NewState(size int) *State {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &State{
		buf:  ringbuf.New[models.Reading](size),
		subs: make(map[chan models.Reading]struct{}),
	}
}

// WithObserver attaches instrumentation
func (s *State) WithObserver(obs Observer) *State {
	s.obs = obs
	return s
}

// Enabled reports whether live mode is on
func (s *State) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles live mode. Turning it on clears the buffer.
func (s *State) SetEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on && !s.enabled {
		s.buf.Reset()
	}
	s.enabled = on
}

// Add buffers r and fans it out to subscribers. Readings are dropped while
// live mode is off. It reports whether r was accepted.
func (s *State) Add(r models.Reading) bool {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return false
	}
	s.buf.Push(r)
	n := s.buf.Len()
	for ch := range s.subs {
		select {
		case ch <- r:
		default:
			// slow subscriber, drop
		}
	}
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.LiveReading(n)
	}
	return true
}

// Readings returns the buffered readings, oldest first
func (s *State) Readings() []models.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Items()
}

// Latest returns the newest buffered reading
func (s *State) Latest() (models.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Last()
}

// Len returns the number of buffered readings
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Capacity returns the buffer size
func (s *State) Capacity() int {
	return s.buf.Cap()
}

// Subscribe registers a listener for new readings. The returned cancel
// function must be called to release it.
func (s *State) Subscribe(backlog int) (<-chan models.Reading, func()) {
	if backlog <= 0 {
		backlog = 16
	}
	ch := make(chan models.Reading, backlog)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}
