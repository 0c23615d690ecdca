package vehicle

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store holds the single process-wide vehicle state: ~70 named scalar fields
// mutated by tool handlers. Writes go through one mutex; reads load an
// immutable snapshot, so readers never block writers and accept occasionally
// stale values. There is no cross-field transactional requirement.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Value // map[string]any, replaced wholesale on write
}

// Defaults returns the initial vehicle state. Zone-scoped settings are
// flattened to one field per zone so every field stays a scalar.
func Defaults() map[string]any {
	return map[string]any{
		// Base vehicle
		"engine_running":      false,
		"speed":               0.0, // km/h
		"fuel_level":          50.0,
		"battery_level":       80.0,
		"range_km":            400.0,
		"mileage":             50000.0,
		"outside_temperature": 25.0,

		// Driving controls
		"driving_mode":           "comfort",
		"parking_brake":          true,
		"cruise_control_enabled": false,
		"cruise_control_speed":   0.0,
		"speed_limit":            0.0,

		// Climate
		"ac_on":                  false,
		"ac_max_mode":            false,
		"auto_climate":           false,
		"recirculation":          false,
		"defrost_front":          false,
		"defrost_rear":           false,
		"temperature_driver":     22.0,
		"temperature_passenger":  22.0,
		"temperature_rear_left":  22.0,
		"temperature_rear_right": 22.0,
		"fan_speed":              3, // 1-7
		"air_direction":          "auto",

		// Seats
		"seat_heating_driver":        0,
		"seat_heating_passenger":     0,
		"seat_heating_rear_left":     0,
		"seat_heating_rear_right":    0,
		"seat_ventilation_driver":    0,
		"seat_ventilation_passenger": 0,
		"seat_massage_driver":        false,
		"seat_massage_passenger":     false,

		// Entertainment
		"music_playing":     false,
		"music_paused":      false,
		"current_song":      "",
		"current_artist":    "",
		"volume":            50, // 0-100
		"muted":             false,
		"audio_source":      "bluetooth",
		"bluetooth_enabled": true,

		// Lighting
		"headlights_on":          false,
		"headlight_mode":         "auto",
		"high_beam":              false,
		"fog_lights_front":       false,
		"fog_lights_rear":        false,
		"interior_lights_on":     false,
		"interior_brightness":    50,
		"daytime_running_lights": true,
		"ambient_light_color":    "white",
		"ambient_theme":          "default",
		"fragrance_on":           false,
		"fragrance_intensity":    3,

		// Windows and sunroof (0 = closed, 100 = fully open)
		"window_driver":     0,
		"window_passenger":  0,
		"window_rear_left":  0,
		"window_rear_right": 0,
		"sunroof_position":  0,
		"sunroof_tilted":    false,

		// Doors
		"doors_locked": true,
		"trunk_open":   false,
		"hood_open":    false,

		// Safety
		"lane_assist":              false,
		"blind_spot_monitor":       true,
		"collision_warning":        true,
		"emergency_brake":          true,
		"rear_cross_traffic_alert": true,

		// ADAS
		"autopilot":                false,
		"auto_parking":             false,
		"traffic_sign_recognition": true,
		"following_distance":       3, // 1-5

		// Wipers
		"wipers_on":   false,
		"wiper_speed": "auto",
		"auto_wipers": true,

		// Navigation
		"navigation_active":      false,
		"navigation_destination": "",
		"voice_guidance":         true,

		// Phone
		"phone_call_active": false,
		"phone_contact":     "",
		"do_not_disturb":    false,
	}
}

func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store(Defaults())
	return s
}

func (s *Store) current() map[string]any {
	return s.snapshot.Load().(map[string]any)
}

// Get reads one field from the latest snapshot.
func (s *Store) Get(field string) (any, bool) {
	v, ok := s.current()[field]
	return v, ok
}

// Set writes one field. Unknown fields are rejected so a typo in a tool
// handler cannot silently grow the state.
func (s *Store) Set(field string, value any) error {
	return s.SetAll(map[string]any{field: value})
}

// SetAll writes several fields in one snapshot swap.
func (s *Store) SetAll(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current()
	for field := range values {
		if _, ok := old[field]; !ok {
			return fmt.Errorf("unknown vehicle state field %q", field)
		}
	}

	next := make(map[string]any, len(old))
	for k, v := range old {
		next[k] = v
	}
	for k, v := range values {
		next[k] = v
	}
	s.snapshot.Store(next)
	return nil
}

// Snapshot returns a value copy of the full state.
func (s *Store) Snapshot() map[string]any {
	cur := s.current()
	out := make(map[string]any, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Bool reads a boolean field, returning false for unknown fields.
func (s *Store) Bool(field string) bool {
	v, _ := s.Get(field)
	b, _ := v.(bool)
	return b
}

// Number reads a numeric field as float64.
func (s *Store) Number(field string) float64 {
	v, _ := s.Get(field)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// String reads a string field.
func (s *Store) String(field string) string {
	v, _ := s.Get(field)
	str, _ := v.(string)
	return str
}
