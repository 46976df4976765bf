package preroll

import "time"

// timeline tracks running time independently for the ingress (admitted) and
// egress (emitted or evicted) directions and derives the currently buffered
// duration from their difference.
//
// Before any egress has happened the resident duration is measured against
// the origin: the running time of the first admitted frame. Once frames leave
// the buffer the egress cursor takes over as the reference.
type timeline struct {
	ingress   time.Duration
	ingressOK bool
	egress    time.Duration
	egressOK  bool
	origin    time.Duration
	originOK  bool

	// tainted marks the origin as stale; the next admitted frame
	// re-establishes it. Set when a reset preserves the cursors but the
	// stream position is no longer trustworthy.
	tainted bool
}

// frameEnd returns the running time at which the frame ends: PTS plus
// duration when a duration is known, bare PTS otherwise.
func frameEnd(f *Frame) time.Duration {
	if f.HasDuration {
		return f.PTS + f.Duration
	}
	return f.PTS
}

// observeIngress advances the ingress cursor for an admitted frame and
// establishes the origin on the first observation (or after a taint).
func (t *timeline) observeIngress(f *Frame) {
	if t.tainted || !t.originOK {
		t.origin = f.PTS
		t.originOK = true
		t.tainted = false
	}
	if end := frameEnd(f); !t.ingressOK || end > t.ingress {
		t.ingress = end
		t.ingressOK = true
	}
}

// observeEgress advances the egress cursor for a frame leaving the buffer,
// whether emitted downstream or destroyed by eviction. Evicted frames must
// advance egress too, or the resident duration would keep growing after the
// store shrank.
func (t *timeline) observeEgress(f *Frame) {
	if end := frameEnd(f); !t.egressOK || end > t.egress {
		t.egress = end
		t.egressOK = true
	}
}

// advanceIngressBy moves the ingress cursor forward without a frame, e.g. for
// a gap marker that declares a span of missing data.
func (t *timeline) advanceIngressBy(d time.Duration) {
	if d <= 0 {
		return
	}
	if t.ingressOK {
		t.ingress += d
	}
}

// resident returns the currently buffered duration: ingress relative to
// egress, or to the origin while nothing has left the buffer yet. Returns 0
// when the cursors are not yet comparable, and never goes negative.
func (t *timeline) resident() time.Duration {
	if !t.ingressOK {
		return 0
	}
	var d time.Duration
	switch {
	case t.egressOK:
		d = t.ingress - t.egress
	case t.originOK:
		d = t.ingress - t.origin
	default:
		return 0
	}
	if d < 0 {
		return 0
	}
	return d
}

// reset clears all cursors. If preserveCursors is true the cursors survive
// but the origin is marked tainted so the next frame re-establishes it.
func (t *timeline) reset(preserveCursors bool) {
	if preserveCursors {
		t.tainted = true
		return
	}
	*t = timeline{}
}
