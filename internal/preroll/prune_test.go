package preroll

import (
	"testing"
	"time"
)

// admitGroup admits one keyframe followed by deltas-1 delta frames, spaced
// evenly starting at base, each frame lasting spacing.
func admitGroup(t *testing.T, b *Buffer, base, spacing time.Duration, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		f := Frame{
			PTS:         base + time.Duration(i)*spacing,
			Duration:    spacing,
			HasDuration: true,
			Keyframe:    i == 0,
			Size:        100,
		}
		if err := b.AdmitFrame(f); err != nil {
			t.Fatalf("AdmitFrame(%v): %v", f.PTS, err)
		}
	}
}

func TestPrune_evicts_whole_groups_over_capacity(t *testing.T) {
	// Capacity 9s; four groups of 4 frames, 1s apart. The first two groups
	// are evicted as the window slides, leaving the last two resident.
	sink := NewCaptureSink()
	b := NewBuffer(Config{CapacitySeconds: 9}, sink, testLogger())

	for g := 0; g < 4; g++ {
		admitGroup(t, b, time.Duration(g*4)*time.Second, time.Second, 4)
	}

	st := b.Snapshot()
	if st.ResidentGroups != 2 {
		t.Errorf("ResidentGroups: got %d, want 2", st.ResidentGroups)
	}
	if st.GroupsEvicted < 1 {
		t.Errorf("GroupsEvicted: got %d, want >= 1", st.GroupsEvicted)
	}
	if st.FramesEvicted == 0 {
		t.Error("FramesEvicted: got 0, want > 0")
	}
	if st.GroupsEvicted != 2 || st.FramesEvicted != 8 {
		t.Errorf("evicted groups=%d frames=%d, want 2/8", st.GroupsEvicted, st.FramesEvicted)
	}
	// Nothing was emitted: eviction destroys, it does not forward.
	if items, _ := sink.Peek(); len(items) != 0 {
		t.Errorf("sink saw %d items during pruning, want 0", len(items))
	}
}

func TestPrune_floor_protects_oversized_group(t *testing.T) {
	// One 8s group (16 frames at 0.5s) plus a 2-frame group, capacity 2s.
	// Both groups stay: a pass never drops below two resident groups.
	b := NewBuffer(Config{CapacitySeconds: 2}, NewCaptureSink(), testLogger())

	admitGroup(t, b, 0, 500*time.Millisecond, 16)
	admitGroup(t, b, 8*time.Second, 500*time.Millisecond, 2)

	st := b.Snapshot()
	if st.ResidentGroups != 2 {
		t.Errorf("ResidentGroups: got %d, want 2", st.ResidentGroups)
	}
	if st.GroupsEvicted != 0 || st.FramesEvicted != 0 {
		t.Errorf("evicted groups=%d frames=%d, want 0/0", st.GroupsEvicted, st.FramesEvicted)
	}
	if st.ResidentFrames != 18 {
		t.Errorf("ResidentFrames: got %d, want 18", st.ResidentFrames)
	}
}

func TestPrune_unlimited_capacity_never_evicts(t *testing.T) {
	b := NewBuffer(Config{CapacitySeconds: 0}, NewCaptureSink(), testLogger())
	for g := 0; g < 50; g++ {
		admitGroup(t, b, time.Duration(g)*time.Second, 250*time.Millisecond, 4)
	}
	st := b.Snapshot()
	if st.GroupsEvicted != 0 {
		t.Errorf("GroupsEvicted: got %d, want 0 with unlimited capacity", st.GroupsEvicted)
	}
	if st.ResidentGroups != 50 {
		t.Errorf("ResidentGroups: got %d, want 50", st.ResidentGroups)
	}
}

func TestPrune_evicts_queued_events_with_their_group(t *testing.T) {
	sink := NewCaptureSink()
	b := NewBuffer(Config{CapacitySeconds: 4}, sink, testLogger())

	admitGroup(t, b, 0, time.Second, 2)
	if err := b.AdmitEvent(ControlEvent{Kind: EventTimelineUpdate}); err != nil {
		t.Fatalf("AdmitEvent: %v", err)
	}
	admitGroup(t, b, 2*time.Second, time.Second, 2)
	admitGroup(t, b, 4*time.Second, time.Second, 2)

	st := b.Snapshot()
	if st.GroupsEvicted != 1 {
		t.Fatalf("GroupsEvicted: got %d, want 1", st.GroupsEvicted)
	}
	if st.EventsEvicted != 1 {
		t.Errorf("EventsEvicted: got %d, want 1 (event queued inside the evicted prefix)", st.EventsEvicted)
	}
	if st.FramesEvicted != 2 {
		t.Errorf("FramesEvicted: got %d, want 2", st.FramesEvicted)
	}
}

func TestPrune_floor_invariant_over_many_shapes(t *testing.T) {
	// The floor must hold for any admitted sequence: after every admission,
	// resident groups >= min(2, groups admitted so far).
	shapes := [][]int{
		{1, 1, 1, 1, 1, 1},
		{16, 2},
		{4, 4, 4, 4},
		{2, 8, 2, 8, 2},
	}
	for _, shape := range shapes {
		b := NewBuffer(Config{CapacitySeconds: 3}, NewCaptureSink(), testLogger())
		admitted := 0
		base := time.Duration(0)
		for _, n := range shape {
			admitGroup(t, b, base, time.Second, n)
			base += time.Duration(n) * time.Second
			admitted++
			want := admitted
			if want > 2 {
				want = 2
			}
			if st := b.Snapshot(); st.ResidentGroups < want {
				t.Fatalf("shape %v: ResidentGroups=%d after %d groups, want >= %d",
					shape, st.ResidentGroups, admitted, want)
			}
		}
	}
}

func TestPrune_first_frame_not_keyframe_is_recovered(t *testing.T) {
	// A delta frame opening the stream is a structural anomaly: it is tagged
	// into group 0 and logged, and pruning still disposes of it cleanly.
	b := NewBuffer(Config{CapacitySeconds: 2}, NewCaptureSink(), testLogger())

	bad := Frame{PTS: 0, Duration: time.Second, HasDuration: true, Keyframe: false, Size: 100}
	if err := b.AdmitFrame(bad); err != nil {
		t.Fatalf("AdmitFrame: %v", err)
	}
	admitGroup(t, b, time.Second, time.Second, 2)
	admitGroup(t, b, 3*time.Second, time.Second, 2)
	admitGroup(t, b, 5*time.Second, time.Second, 2)

	st := b.Snapshot()
	if st.ResidentGroups != 2 {
		t.Errorf("ResidentGroups: got %d, want 2", st.ResidentGroups)
	}
	// Group 0 (the orphan delta) and group 1 are gone.
	if st.GroupsEvicted != 2 {
		t.Errorf("GroupsEvicted: got %d, want 2", st.GroupsEvicted)
	}
}
