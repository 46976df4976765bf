package preroll

import (
	"encoding/json"
	"strings"
	"time"
)

// StreamID uniquely identifies a media stream handled by the service.
type StreamID string

// Mode is the state of a buffer's mode controller.
type Mode int

const (
	// ModeBuffering retains admitted frames in the ring store.
	ModeBuffering Mode = iota
	// ModePassThrough forwards admitted frames directly downstream.
	ModePassThrough
)

// String returns the lowercase name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeBuffering:
		return "buffering"
	case ModePassThrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// EOSPolicy controls what happens to buffered frames when end-of-stream arrives.
type EOSPolicy int

const (
	// EOSAuto drains buffered frames only if a flush has happened
	// (i.e. the buffer is in pass-through mode when EOS arrives).
	EOSAuto EOSPolicy = iota
	// EOSAlways drains buffered frames before forwarding EOS.
	EOSAlways
	// EOSNever discards buffered frames and forwards EOS immediately.
	EOSNever
)

// ParseEOSPolicy converts a policy name ("auto", "always", "never") to an
// EOSPolicy. Unknown names default to EOSAuto.
func ParseEOSPolicy(s string) EOSPolicy {
	switch strings.ToLower(s) {
	case "always":
		return EOSAlways
	case "never":
		return EOSNever
	default:
		return EOSAuto
	}
}

// String returns the lowercase name of the policy.
func (p EOSPolicy) String() string {
	switch p {
	case EOSAlways:
		return "always"
	case EOSNever:
		return "never"
	default:
		return "auto"
	}
}

// Frame is an encoded media frame. The payload itself is referenced, never
// stored; the buffer only cares about timing, size, and the keyframe flag.
type Frame struct {
	PTS         time.Duration
	DTS         time.Duration
	HasDTS      bool
	Duration    time.Duration
	HasDuration bool
	Keyframe    bool
	Size        int
	PayloadRef  string

	// GroupID is assigned on admission by the group tracker; frames sharing
	// a GroupID are stored and evicted as a unit.
	GroupID uint64
}

// EventKind classifies a control event.
type EventKind int

const (
	// EventTimelineUpdate carries a segment/timeline change. Forwarded
	// immediately and additionally replayed at drain time.
	EventTimelineUpdate EventKind = iota
	// EventGapMarker advances the timeline without carrying a frame.
	// Forwarded immediately and additionally replayed at drain time.
	EventGapMarker
	// EventPassThrough is any other event kind: forwarded immediately,
	// never queued for replay.
	EventPassThrough
)

// ParseEventKind converts a kind name to an EventKind. Unknown names are
// treated as pass-through events.
func ParseEventKind(s string) EventKind {
	switch strings.ToLower(s) {
	case "timeline-update":
		return EventTimelineUpdate
	case "gap":
		return EventGapMarker
	default:
		return EventPassThrough
	}
}

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventTimelineUpdate:
		return "timeline-update"
	case EventGapMarker:
		return "gap"
	default:
		return "passthrough"
	}
}

// ControlEvent is a non-frame item travelling with the stream. Payload holds
// whatever the collaborator needs to reconstruct the event on replay.
type ControlEvent struct {
	Kind     EventKind
	Duration time.Duration
	Payload  json.RawMessage
}

// Clone returns an independent copy of the event. An event that is both
// forwarded immediately and queued for replay must be cloned at that point so
// the two copies have fully independent lifetimes.
func (e *ControlEvent) Clone() *ControlEvent {
	c := &ControlEvent{Kind: e.Kind, Duration: e.Duration}
	if e.Payload != nil {
		c.Payload = make(json.RawMessage, len(e.Payload))
		copy(c.Payload, e.Payload)
	}
	return c
}

// QueuedItem is the tagged union stored in the ring: exactly one of Frame or
// Event is non-nil. The ring store holds the single authoritative reference
// to each item until it is evicted or its ownership is transferred downstream.
type QueuedItem struct {
	Frame *Frame
	Event *ControlEvent
}

// IsFrame reports whether the item carries a frame.
func (it QueuedItem) IsFrame() bool { return it.Frame != nil }

// Size returns the payload size of a frame item, 0 for events.
func (it QueuedItem) Size() int {
	if it.Frame != nil {
		return it.Frame.Size
	}
	return 0
}

// DefaultFlushTriggerName is the signal name that triggers a drain when no
// custom name is configured.
const DefaultFlushTriggerName = "flush-buffer"

// Config is the runtime configuration of a buffer.
type Config struct {
	// CapacitySeconds is the retention ceiling in whole seconds; 0 means
	// unlimited. Negative values are clamped to 0.
	CapacitySeconds int
	// EOSPolicy selects drain-vs-discard behavior at end-of-stream.
	EOSPolicy EOSPolicy
	// FlushTriggerName is the control signal name that triggers a drain.
	FlushTriggerName string
	// Silent suppresses per-frame debug logging.
	Silent bool
}

// withDefaults clamps invalid values and fills zero values with defaults.
func (c Config) withDefaults() Config {
	if c.CapacitySeconds < 0 {
		c.CapacitySeconds = 0
	}
	if c.FlushTriggerName == "" {
		c.FlushTriggerName = DefaultFlushTriggerName
	}
	return c
}

// capacity returns the retention ceiling as a duration, floored to whole
// seconds. Zero means unlimited.
func (c Config) capacity() time.Duration {
	return time.Duration(c.CapacitySeconds) * time.Second
}

// Stats is a consistent snapshot of a buffer's counters and gauges.
type Stats struct {
	GroupsEvicted  uint64 `json:"groups_evicted"`
	FramesEvicted  uint64 `json:"frames_evicted"`
	EventsEvicted  uint64 `json:"events_evicted"`
	FlushCount     uint64 `json:"flush_count"`
	RearmCount     uint64 `json:"rearm_count"`
	ResidentGroups int    `json:"resident_groups"`
	ResidentFrames int    `json:"resident_frames"`
}
