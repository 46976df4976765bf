package preroll

import "sync"

// Sink receives items leaving the buffer: drained or passed-through frames,
// replayed control events, and end-of-stream. Ownership of each item
// transfers to the sink on the call; the buffer keeps no reference.
//
// Sink calls are made without the buffer's lock held, so an implementation
// may block (e.g. on network I/O) without stalling other buffer operations
// beyond ordering.
type Sink interface {
	EmitFrame(f *Frame)
	EmitEvent(e *ControlEvent)
	EmitEOS()
}

// CaptureSink is a Sink that retains everything emitted, in order. It backs
// the HTTP output endpoint and tests.
type CaptureSink struct {
	mu    sync.Mutex
	items []QueuedItem
	eos   bool
}

// NewCaptureSink returns an empty CaptureSink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// EmitFrame implements Sink.
func (s *CaptureSink) EmitFrame(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, QueuedItem{Frame: f})
}

// EmitEvent implements Sink.
func (s *CaptureSink) EmitEvent(e *ControlEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, QueuedItem{Event: e})
}

// EmitEOS implements Sink.
func (s *CaptureSink) EmitEOS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos = true
}

// Take removes and returns all captured items in emission order, along with
// whether end-of-stream has been emitted.
func (s *CaptureSink) Take() (items []QueuedItem, eos bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items = s.items
	s.items = nil
	return items, s.eos
}

// Peek returns the captured items without consuming them.
func (s *CaptureSink) Peek() (items []QueuedItem, eos bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items = make([]QueuedItem, len(s.items))
	copy(items, s.items)
	return items, s.eos
}
