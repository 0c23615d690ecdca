package vehicle

import (
	"sync"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := NewStore()

	if err := s.Set("ac_on", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := s.Get("ac_on"); v != true {
		t.Fatalf("get after set = %v", v)
	}

	if err := s.Set("temperature_driver", 23.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.Number("temperature_driver") != 23.5 {
		t.Fatalf("number = %f", s.Number("temperature_driver"))
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	s := NewStore()
	if err := s.Set("warp_drive", true); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestSetAllRejectsPartialUnknown(t *testing.T) {
	s := NewStore()
	err := s.SetAll(map[string]any{"ac_on": true, "warp_drive": true})
	if err == nil {
		t.Fatal("expected rejection")
	}
	// Nothing should have been applied.
	if s.Bool("ac_on") {
		t.Fatal("partial write applied")
	}
}

// Concurrent setters on distinct keys: every write must be observable
// afterwards (the snapshot-swap must not lose updates).
func TestConcurrentSettersOnDistinctKeys(t *testing.T) {
	s := NewStore()

	fields := []string{
		"window_driver", "window_passenger", "window_rear_left", "window_rear_right",
		"fan_speed", "volume", "interior_brightness", "following_distance",
	}

	var wg sync.WaitGroup
	for i, field := range fields {
		wg.Add(1)
		go func(field string, value int) {
			defer wg.Done()
			for range 100 {
				if err := s.Set(field, value); err != nil {
					t.Errorf("set %s: %v", field, err)
					return
				}
			}
		}(field, i+1)
	}
	wg.Wait()

	for i, field := range fields {
		if got := int(s.Number(field)); got != i+1 {
			t.Errorf("%s = %d, want %d", field, got, i+1)
		}
	}
}

func TestSnapshotIsValueCopy(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	snap["ac_on"] = true

	if s.Bool("ac_on") {
		t.Fatal("mutating a snapshot must not affect the store")
	}
}

func TestDefaultsCoverAllAccessors(t *testing.T) {
	s := NewStore()

	checks := []struct {
		field string
		kind  string
	}{
		{"engine_running", "bool"},
		{"driving_mode", "string"},
		{"fuel_level", "number"},
		{"doors_locked", "bool"},
		{"wiper_speed", "string"},
	}
	for _, c := range checks {
		v, ok := s.Get(c.field)
		if !ok {
			t.Fatalf("missing default for %s", c.field)
		}
		switch c.kind {
		case "bool":
			if _, ok := v.(bool); !ok {
				t.Fatalf("%s: expected bool, got %T", c.field, v)
			}
		case "string":
			if _, ok := v.(string); !ok {
				t.Fatalf("%s: expected string, got %T", c.field, v)
			}
		case "number":
			if _, ok := v.(float64); !ok {
				t.Fatalf("%s: expected float64, got %T", c.field, v)
			}
		}
	}

	if n := len(s.Snapshot()); n < 70 {
		t.Fatalf("expected at least 70 fields, got %d", n)
	}
}
