package preroll

import (
	"errors"
	"testing"
	"time"
)

func TestService_creates_buffer_on_first_admission(t *testing.T) {
	svc := NewService(Config{}, testLogger())
	if err := svc.AdmitFrame("cam-1", frameAt(0, time.Second, true)); err != nil {
		t.Fatalf("AdmitFrame: %v", err)
	}
	st, mode, _, err := svc.Stats("cam-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if mode != ModeBuffering || st.ResidentFrames != 1 {
		t.Errorf("got mode=%v frames=%d, want buffering/1", mode, st.ResidentFrames)
	}
}

func TestService_streams_are_isolated(t *testing.T) {
	svc := NewService(Config{}, testLogger())
	_ = svc.AdmitFrame("a", frameAt(0, time.Second, true))
	_ = svc.AdmitFrame("b", frameAt(0, time.Second, true))

	if _, _, err := svc.Signal("a", DefaultFlushTriggerName, false); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	_, modeA, _, _ := svc.Stats("a")
	_, modeB, _, _ := svc.Stats("b")
	if modeA != ModePassThrough {
		t.Errorf("stream a: got %v, want passthrough", modeA)
	}
	if modeB != ModeBuffering {
		t.Errorf("stream b: got %v, want buffering (unaffected)", modeB)
	}
	if svc.StreamCount() != 2 {
		t.Errorf("StreamCount: got %d, want 2", svc.StreamCount())
	}
}

func TestService_custom_flush_trigger_name(t *testing.T) {
	svc := NewService(Config{FlushTriggerName: "motion-detected"}, testLogger())
	_ = svc.AdmitFrame("cam", frameAt(0, time.Second, true))

	// The default literal is not this stream's trigger.
	if _, _, err := svc.Signal("cam", DefaultFlushTriggerName, false); !errors.Is(err, ErrUnknownSignal) {
		t.Errorf("default trigger name: got %v, want ErrUnknownSignal", err)
	}

	kind, accepted, err := svc.Signal("cam", "motion-detected", false)
	if err != nil || !accepted {
		t.Errorf("custom trigger: accepted=%v err=%v, want accepted", accepted, err)
	}
	if kind != SignalKindFlush {
		t.Errorf("custom trigger kind: got %v, want SignalKindFlush", kind)
	}
}

func TestService_signal_kind_resolution(t *testing.T) {
	// The reported kind identifies the signal regardless of the configured
	// trigger name, so callers keying metrics on it stay honest.
	svc := NewService(Config{FlushTriggerName: "motion-detected"}, testLogger())
	_ = svc.AdmitFrame("cam", frameAt(0, time.Second, true))

	if kind, _, _ := svc.Signal("cam", "motion-detected", false); kind != SignalKindFlush {
		t.Errorf("flush trigger: got kind %v, want SignalKindFlush", kind)
	}
	if kind, accepted, _ := svc.Signal("cam", SignalRearm, false); kind != SignalKindRearm || !accepted {
		t.Errorf("rearm: got kind %v accepted=%v, want SignalKindRearm accepted", kind, accepted)
	}
	if kind, _, _ := svc.Signal("cam", SignalEOS, false); kind != SignalKindEOS {
		t.Errorf("eos: got kind %v, want SignalKindEOS", kind)
	}
	if kind, _, err := svc.Signal("cam", "nonsense", false); kind != SignalKindUnknown || err == nil {
		t.Errorf("unknown: got kind %v err=%v, want SignalKindUnknown with error", kind, err)
	}
}

func TestService_signal_unknown_stream(t *testing.T) {
	svc := NewService(Config{}, testLogger())
	if _, _, err := svc.Signal("ghost", SignalEOS, false); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("got %v, want ErrStreamNotFound", err)
	}
	if _, _, _, err := svc.Stats("ghost"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("Stats: got %v, want ErrStreamNotFound", err)
	}
}

func TestService_set_config_before_first_frame(t *testing.T) {
	svc := NewService(Config{}, testLogger())
	svc.SetConfig("cam", Config{CapacitySeconds: 9, FlushTriggerName: "go"})
	_ = svc.AdmitFrame("cam", frameAt(0, time.Second, true))

	_, accepted, err := svc.Signal("cam", "go", false)
	if err != nil || !accepted {
		t.Errorf("configured trigger before first frame: accepted=%v err=%v", accepted, err)
	}
}

func TestService_take_output_consumes(t *testing.T) {
	svc := NewService(Config{}, testLogger())
	_ = svc.AdmitFrame("cam", frameAt(0, time.Second, true))
	_ = svc.AdmitFrame("cam", frameAt(time.Second, time.Second, false))
	_, _, _ = svc.Signal("cam", DefaultFlushTriggerName, false)

	items, eos, err := svc.TakeOutput("cam")
	if err != nil {
		t.Fatalf("TakeOutput: %v", err)
	}
	if len(items) != 2 || eos {
		t.Errorf("got %d items eos=%v, want 2 items no eos", len(items), eos)
	}

	items, _, _ = svc.TakeOutput("cam")
	if len(items) != 0 {
		t.Errorf("second take returned %d items, want 0", len(items))
	}
}

func TestService_totals_aggregates_streams(t *testing.T) {
	svc := NewService(Config{CapacitySeconds: 9, Silent: true}, testLogger())
	for _, id := range []StreamID{"a", "b"} {
		for g := 0; g < 4; g++ {
			for i := 0; i < 4; i++ {
				_ = svc.AdmitFrame(id, Frame{
					PTS:         time.Duration(g*4+i) * time.Second,
					Duration:    time.Second,
					HasDuration: true,
					Keyframe:    i == 0,
					Size:        100,
				})
			}
		}
	}

	tot := svc.Totals()
	if tot.GroupsEvicted != 4 {
		t.Errorf("GroupsEvicted: got %d, want 4 (2 per stream)", tot.GroupsEvicted)
	}
	if tot.ResidentGroups != 4 {
		t.Errorf("ResidentGroups: got %d, want 4 (2 per stream)", tot.ResidentGroups)
	}
	if tot.FramesEvicted != 16 {
		t.Errorf("FramesEvicted: got %d, want 16", tot.FramesEvicted)
	}
}
