package preroll

import "log/slog"

// groupTracker assigns an incrementing group id to frames: every keyframe
// opens a new group, delta frames join the current one. Group ids are the
// basis for whole-group eviction.
type groupTracker struct {
	current uint64
	log     *slog.Logger
}

// assign tags the frame with its group id. storeEmpty reports whether the
// ring store was empty at admission time: the first frame of an empty store
// is expected to be a keyframe, and a delta frame in that position is a
// structural-integrity error. The frame is tagged and kept anyway; payload
// correctness is not this component's call to make.
func (g *groupTracker) assign(f *Frame, storeEmpty bool) {
	if f.Keyframe {
		g.current++
	} else if storeEmpty {
		g.log.Error("first buffered frame is not a keyframe",
			slog.Int64("pts_ms", f.PTS.Milliseconds()),
			slog.Uint64("group_id", g.current))
	}
	f.GroupID = g.current
}

// reset restarts the group id sequence, e.g. on re-arm or stream reset.
func (g *groupTracker) reset() {
	g.current = 0
}
