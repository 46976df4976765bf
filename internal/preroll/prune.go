package preroll

import "log/slog"

// floorGroups is the minimum number of whole groups that must stay resident
// after any pruning pass. Keeping two guarantees a decodable window survives
// even when a single group is larger than the configured capacity.
const floorGroups = 2

// pruneLocked evicts whole groups from the head of the store while the
// buffered duration is at or over the capacity ceiling. Called with the lock
// held, after every admission in buffering mode.
//
// Each pass removes exactly one group: the leading events of the prefix, then
// every frame tagged with the oldest group id, stopping when the head frame
// belongs to a newer group. A pass never runs if it would leave fewer than
// floorGroups groups resident, even if the duration still exceeds the
// ceiling; an oversized group is retained rather than torn apart.
func (b *Buffer) pruneLocked() {
	ceiling := b.cfg.capacity()
	if ceiling <= 0 {
		return
	}
	for b.tl.resident() >= ceiling {
		if b.store.groupCount() <= floorGroups {
			return
		}
		b.evictOldestGroupLocked()
	}
}

// evictOldestGroupLocked removes the oldest resident group in one pass and
// updates the eviction counters.
func (b *Buffer) evictOldestGroupLocked() {
	target := b.store.oldestGroup
	var frames, events uint64
	first := true

	for {
		head, ok := b.store.peekHead()
		if !ok {
			break
		}
		if f := head.Frame; f != nil {
			if f.GroupID > target {
				// Head of a newer group: the pass is complete.
				break
			}
			// Structural anomalies are logged and dropped best-effort;
			// degraded retention beats a stalled stream.
			if first && !f.Keyframe {
				b.log.Error("pruning target group does not start with a keyframe",
					slog.Uint64("group_id", f.GroupID),
					slog.Int64("pts_ms", f.PTS.Milliseconds()))
			} else if f.GroupID < target {
				b.log.Error("frame group id behind pruning target",
					slog.Uint64("group_id", f.GroupID),
					slog.Uint64("target_group_id", target))
			}
			first = false
			frames++
		} else {
			events++
		}
		it, _ := b.popHeadLocked()
		b.obs.ItemEvicted(it)
	}

	b.stats.GroupsEvicted++
	b.stats.FramesEvicted += frames
	b.stats.EventsEvicted += events
	if !b.cfg.Silent {
		b.log.Debug("group evicted",
			slog.Uint64("group_id", target),
			slog.Uint64("frames", frames),
			slog.Uint64("events", events),
			slog.Int("resident_groups", b.store.groupCount()))
	}
}
