package preroll

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrUnknownSignal is returned when a signal name matches neither the
// stream's flush trigger nor any of the fixed signal names.
var ErrUnknownSignal = errors.New("unknown signal")

// ErrStreamNotFound is returned for operations on streams that have never
// admitted anything.
var ErrStreamNotFound = errors.New("stream not found")

// Fixed control signal names. The flush trigger name is configurable per
// stream; everything else is a fixed literal.
const (
	SignalRearm      = "rearm"
	SignalEOS        = "eos"
	SignalResetBegin = "reset-begin"
	SignalResetEnd   = "reset-end"
)

// SignalKind identifies which signal a name resolved to, independent of the
// stream's configured trigger name.
type SignalKind int

const (
	SignalKindUnknown SignalKind = iota
	SignalKindFlush
	SignalKindRearm
	SignalKindEOS
	SignalKindResetBegin
	SignalKindResetEnd
)

// streamBuffer pairs a buffer with the capture sink that retains its output
// for the polling consumer.
type streamBuffer struct {
	buf  *Buffer
	sink *CaptureSink
}

// Service manages one pre-roll buffer per stream. Buffers are created on
// first admission with the service-level default configuration.
type Service struct {
	mu      sync.RWMutex
	streams map[StreamID]*streamBuffer

	defaults Config
	log      *slog.Logger
}

// NewService returns a Service whose buffers start with the given default
// configuration.
func NewService(defaults Config, log *slog.Logger) *Service {
	return &Service{
		streams:  make(map[StreamID]*streamBuffer),
		defaults: defaults.withDefaults(),
		log:      log,
	}
}

// AdmitFrame admits a frame to the stream's buffer, creating the buffer on
// first use.
func (s *Service) AdmitFrame(id StreamID, f Frame) error {
	return s.getOrCreate(id).buf.AdmitFrame(f)
}

// AdmitEvent admits a control event to the stream's buffer, creating the
// buffer on first use.
func (s *Service) AdmitEvent(id StreamID, ev ControlEvent) error {
	return s.getOrCreate(id).buf.AdmitEvent(ev)
}

// Signal dispatches a named control signal to the stream's buffer. The
// flush trigger name is matched against the stream's configuration (and wins
// over the fixed names on a collision); the remaining names are fixed.
// kind reports which signal the name resolved to; accepted reports whether
// the signal changed state (flush and re-arm are no-ops in the wrong mode).
func (s *Service) Signal(id StreamID, name string, preserveTimeline bool) (kind SignalKind, accepted bool, err error) {
	sb, ok := s.lookup(id)
	if !ok {
		return SignalKindUnknown, false, ErrStreamNotFound
	}
	switch name {
	case sb.buf.Config().FlushTriggerName:
		return SignalKindFlush, sb.buf.SignalFlush(), nil
	case SignalRearm:
		return SignalKindRearm, sb.buf.SignalRearm(), nil
	case SignalEOS:
		sb.buf.SignalEOS()
		return SignalKindEOS, true, nil
	case SignalResetBegin:
		sb.buf.ResetBegin()
		return SignalKindResetBegin, true, nil
	case SignalResetEnd:
		sb.buf.ResetEnd(preserveTimeline)
		return SignalKindResetEnd, true, nil
	default:
		return SignalKindUnknown, false, ErrUnknownSignal
	}
}

// SetConfig updates a stream's runtime configuration, creating the buffer if
// needed so configuration can precede the first frame.
func (s *Service) SetConfig(id StreamID, cfg Config) {
	s.getOrCreate(id).buf.SetConfig(cfg)
}

// Stats returns the stream's counter snapshot plus its current mode and
// buffered duration.
func (s *Service) Stats(id StreamID) (Stats, Mode, time.Duration, error) {
	sb, ok := s.lookup(id)
	if !ok {
		return Stats{}, ModeBuffering, 0, ErrStreamNotFound
	}
	return sb.buf.Snapshot(), sb.buf.Mode(), sb.buf.ResidentDuration(), nil
}

// TakeOutput consumes and returns everything the stream's buffer has emitted
// since the last call, in emission order.
func (s *Service) TakeOutput(id StreamID) (items []QueuedItem, eos bool, err error) {
	sb, ok := s.lookup(id)
	if !ok {
		return nil, false, ErrStreamNotFound
	}
	items, eos = sb.sink.Take()
	return items, eos, nil
}

// StreamCount returns the number of known streams. Used for metrics.
func (s *Service) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// Totals aggregates counters and gauges across all streams for the metrics
// endpoint.
func (s *Service) Totals() (st Stats) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sb := range s.streams {
		snap := sb.buf.Snapshot()
		st.GroupsEvicted += snap.GroupsEvicted
		st.FramesEvicted += snap.FramesEvicted
		st.EventsEvicted += snap.EventsEvicted
		st.FlushCount += snap.FlushCount
		st.RearmCount += snap.RearmCount
		st.ResidentGroups += snap.ResidentGroups
		st.ResidentFrames += snap.ResidentFrames
	}
	return st
}

func (s *Service) lookup(id StreamID) (*streamBuffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb, ok := s.streams[id]
	return sb, ok
}

func (s *Service) getOrCreate(id StreamID) *streamBuffer {
	if sb, ok := s.lookup(id); ok {
		return sb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sb, ok := s.streams[id]; ok {
		return sb
	}
	sink := NewCaptureSink()
	sb := &streamBuffer{
		buf:  NewBuffer(s.defaults, sink, s.log.With(slog.String("stream_id", string(id)))),
		sink: sink,
	}
	s.streams[id] = sb
	return sb
}
