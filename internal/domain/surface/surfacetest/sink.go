package surfacetest

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
)

// Sink records every event it receives.
type Sink struct {
	mu     sync.Mutex
	events []protocol.Event
}

// NewSink creates an empty recording sink.
func NewSink() *Sink {
	return &Sink{}
}

// Emit records ev.
func (s *Sink) Emit(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of the recorded events.
func (s *Sink) Events() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.events...)
}

// Len returns the number of recorded events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// MockSink is a mock implementation of surface.Sink.
type MockSink struct {
	mock.Mock
}

// Emit mocks the Emit method.
func (m *MockSink) Emit(ev protocol.Event) {
	m.Called(ev)
}
