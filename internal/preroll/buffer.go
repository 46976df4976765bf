package preroll

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrFlushing is returned when an admission arrives during a reset
	// window (between reset-begin and reset-end). The item is refused, not
	// queued; callers must propagate the status upstream unchanged.
	ErrFlushing = errors.New("buffer is flushing")

	// ErrEOS is returned when an admission arrives after end-of-stream.
	ErrEOS = errors.New("stream has ended")
)

// Buffer is the pre-roll engine: a group-aligned ring store, a two-state
// mode controller, and the duration accounting that drives eviction.
//
// In buffering mode admitted frames accumulate in the ring store, pruned a
// whole group at a time back to the capacity ceiling but never below two
// resident groups. A flush drains the retained window downstream in
// admission order and flips to pass-through mode, where frames bypass
// storage entirely. A re-arm returns to buffering with fresh accounting.
//
// All mutable state is guarded by one mutex. Every operation holds it for
// its full duration except the hand-off of each item to the sink during a
// drain, where the lock is released around the potentially slow downstream
// call and re-acquired for the next pop. A mutator racing a drain therefore
// blocks on the lock and observes the post-drain state, never a half-drained
// inconsistency.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	cfg         Config
	mode        Mode
	prerollSent bool
	rejecting   bool
	eos         bool

	store  ringStore
	groups groupTracker
	tl     timeline
	stats  Stats

	sink Sink
	obs  Observer
	log  *slog.Logger
}

// NewBuffer returns a buffer in buffering mode. Invalid config values are
// clamped rather than rejected. log may not be nil.
func NewBuffer(cfg Config, sink Sink, log *slog.Logger) *Buffer {
	return NewBufferWithObserver(cfg, sink, log, nil)
}

// NewBufferWithObserver is NewBuffer with an injected lifecycle observer.
// A nil observer disables callbacks at no cost.
func NewBufferWithObserver(cfg Config, sink Sink, log *slog.Logger, obs Observer) *Buffer {
	if obs == nil {
		obs = nopObserver{}
	}
	b := &Buffer{
		cfg:    cfg.withDefaults(),
		mode:   ModeBuffering,
		groups: groupTracker{log: log},
		sink:   sink,
		obs:    obs,
		log:    log,
	}
	// Reserved for an asynchronous producer/consumer split; the synchronous
	// contract never waits on them. Reset wakes any future waiter.
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// AdmitFrame accepts one frame from upstream. In buffering mode the frame is
// stored and the pruning policy applied; in pass-through mode it is forwarded
// directly downstream. Returns ErrFlushing during a reset window and ErrEOS
// after end-of-stream.
func (b *Buffer) AdmitFrame(f Frame) error {
	b.mu.Lock()
	if b.rejecting {
		b.mu.Unlock()
		return ErrFlushing
	}
	if b.eos {
		b.mu.Unlock()
		return ErrEOS
	}

	if b.mode == ModePassThrough {
		b.tl.observeIngress(&f)
		b.tl.observeEgress(&f)
		b.prerollSent = true
		b.mu.Unlock()
		b.sink.EmitFrame(&f)
		return nil
	}

	b.groups.assign(&f, b.store.frameCount() == 0)
	b.tl.observeIngress(&f)
	it := QueuedItem{Frame: &f}
	b.store.admit(it)
	b.obs.ItemStored(it)
	if !b.cfg.Silent {
		b.log.Debug("frame buffered",
			slog.Int64("pts_ms", f.PTS.Milliseconds()),
			slog.Uint64("group_id", f.GroupID),
			slog.Bool("keyframe", f.Keyframe),
			slog.Int("resident_frames", b.store.frameCount()))
	}
	b.pruneLocked()
	b.notEmpty.Signal()
	b.mu.Unlock()
	return nil
}

// AdmitEvent accepts one control event. Timeline updates and gap markers are
// forwarded immediately regardless of mode and, while buffering, additionally
// queued as an independent clone so they can be replayed at drain time.
// Other kinds are forwarded only.
func (b *Buffer) AdmitEvent(ev ControlEvent) error {
	b.mu.Lock()
	if b.rejecting {
		b.mu.Unlock()
		return ErrFlushing
	}
	if b.eos {
		b.mu.Unlock()
		return ErrEOS
	}

	if ev.Kind == EventGapMarker {
		b.tl.advanceIngressBy(ev.Duration)
	}
	if b.mode == ModeBuffering && ev.Kind != EventPassThrough {
		it := QueuedItem{Event: ev.Clone()}
		b.store.admit(it)
		b.obs.ItemStored(it)
	}
	b.notEmpty.Signal()
	b.mu.Unlock()

	b.sink.EmitEvent(&ev)
	return nil
}

// SignalFlush handles the flush trigger: if buffering, drain the whole
// retained window downstream in admission order and switch to pass-through.
// A flush arriving while another drain is in progress blocks on the lock,
// then finds pass-through mode and is ignored. Returns whether the flush was
// accepted.
func (b *Buffer) SignalFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode != ModeBuffering {
		b.log.Debug("flush ignored", slog.String("mode", b.mode.String()))
		return false
	}

	// Flip before the first lock release so a concurrent flush observes
	// pass-through mode and backs off.
	b.mode = ModePassThrough
	b.stats.FlushCount++
	b.obs.ModeChanged(ModeBuffering, ModePassThrough)
	b.log.Info("flush accepted, draining",
		slog.Int("pending_items", b.store.len()),
		slog.Int("pending_frames", b.store.frameCount()))
	b.drainLocked()
	return true
}

// SignalRearm returns a pass-through buffer to buffering mode with fresh
// group, timeline, and resident accounting. Already-forwarded data is never
// retracted. Ignored while still buffering. Returns whether accepted.
func (b *Buffer) SignalRearm() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode != ModePassThrough {
		b.log.Debug("re-arm ignored", slog.String("mode", b.mode.String()))
		return false
	}

	b.discardLocked()
	b.groups.reset()
	b.tl.reset(false)
	b.mode = ModeBuffering
	b.stats.RearmCount++
	b.obs.ModeChanged(ModePassThrough, ModeBuffering)
	b.log.Info("re-armed", slog.Uint64("rearm_count", b.stats.RearmCount))
	return true
}

// SignalEOS applies the configured end-of-stream policy: drain the store,
// or discard it, then forward end-of-stream. With EOSAuto the mode decides:
// buffering means no flush has happened, so the window is discarded;
// pass-through means a capture is in progress, so residual items drain.
// Subsequent admissions fail with ErrEOS.
func (b *Buffer) SignalEOS() {
	b.mu.Lock()
	b.eos = true

	drain := false
	switch b.cfg.EOSPolicy {
	case EOSAlways:
		drain = true
	case EOSNever:
		drain = false
	case EOSAuto:
		drain = b.mode == ModePassThrough
	}

	b.log.Info("end of stream",
		slog.String("policy", b.cfg.EOSPolicy.String()),
		slog.Bool("drain", drain),
		slog.Int("pending_items", b.store.len()))

	if drain {
		b.drainLocked()
	} else {
		b.discardLocked()
	}
	b.mu.Unlock()

	b.sink.EmitEOS()
}

// ResetBegin starts a reset window: the store is cleared, group and resident
// accounting restart, and every admission until ResetEnd is refused with
// ErrFlushing. Any waiter blocked on the condition variables is woken so it
// can observe the flushing state.
func (b *Buffer) ResetBegin() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rejecting = true
	// The timeline is reset wholesale below, so per-item egress bookkeeping
	// would be wasted work; drop the store in one go.
	b.store.clear()
	b.groups.reset()
	b.tl.reset(false)
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	b.log.Info("reset begin, rejecting admissions")
}

// ResetEnd closes the reset window and accepts admissions again. With
// preserveTimeline the running-time cursors survive but are marked for
// recompute; otherwise timeline accounting restarts from scratch. EOS state
// is cleared either way: a reset is how a stream restarts.
func (b *Buffer) ResetEnd(preserveTimeline bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rejecting = false
	b.eos = false
	b.tl.reset(preserveTimeline)
	b.log.Info("reset end", slog.Bool("preserve_timeline", preserveTimeline))
}

// SetConfig replaces the runtime configuration. Invalid values are clamped.
// A lowered capacity takes effect on the next admission's prune pass.
func (b *Buffer) SetConfig(cfg Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = cfg.withDefaults()
}

// Config returns the current configuration.
func (b *Buffer) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Mode returns the current mode.
func (b *Buffer) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// PrerollSent reports whether at least one frame has been forwarded
// downstream since creation.
func (b *Buffer) PrerollSent() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prerollSent
}

// ResidentDuration returns the currently buffered duration.
func (b *Buffer) ResidentDuration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tl.resident()
}

// Snapshot returns an internally consistent copy of the counters and the
// current resident gauges, taken at one instant under the lock.
func (b *Buffer) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stats
	st.ResidentGroups = b.store.groupCount()
	st.ResidentFrames = b.store.frameCount()
	return st
}

// popHeadLocked removes the head item with full bookkeeping: a removed frame
// feeds the egress cursor so duration accounting stays correct whether the
// item is emitted or destroyed.
func (b *Buffer) popHeadLocked() (QueuedItem, bool) {
	it, ok := b.store.removeHead()
	if !ok {
		return QueuedItem{}, false
	}
	if it.Frame != nil {
		b.tl.observeEgress(it.Frame)
	}
	b.notFull.Signal()
	return it, true
}

// drainLocked emits every resident item downstream in admission order.
// Called with the lock held; the lock is released around each sink call and
// re-acquired before the next pop, so a racing reset can empty the store
// between two pops and end the drain early.
func (b *Buffer) drainLocked() int {
	b.obs.DrainStarted(b.store.len())
	emitted := 0
	for {
		it, ok := b.popHeadLocked()
		if !ok {
			break
		}
		if it.IsFrame() {
			b.prerollSent = true
		}
		b.mu.Unlock()
		if it.IsFrame() {
			b.sink.EmitFrame(it.Frame)
		} else {
			b.sink.EmitEvent(it.Event)
		}
		emitted++
		b.mu.Lock()
	}
	b.obs.DrainFinished(emitted)
	return emitted
}

// discardLocked destroys every resident item without emitting. Eviction
// counters are untouched: these items are casualties of a reset or EOS
// policy, not of the pruning policy.
func (b *Buffer) discardLocked() {
	for {
		it, ok := b.popHeadLocked()
		if !ok {
			return
		}
		b.obs.ItemEvicted(it)
	}
}
