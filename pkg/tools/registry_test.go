package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brookwillow/kiwi/pkg/vehicle"
)

func newTestRegistry(maxPerMinute int) *Registry {
	r := NewRegistry(vehicle.NewStore(), maxPerMinute)
	for _, t := range Catalog() {
		r.Register(t)
	}
	return r
}

func TestExecuteMutatesVehicleState(t *testing.T) {
	r := newTestRegistry(0)

	result, err := r.Execute(context.Background(), "turn_on_ac", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, r.State().Bool("ac_on"))
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(0)

	_, err := r.Execute(context.Background(), "fly_to_moon", nil)
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestValidationMissingRequired(t *testing.T) {
	r := newTestRegistry(0)

	_, err := r.Execute(context.Background(), "set_temperature", map[string]any{"zone": "driver"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "missing required parameter: temperature")
}

func TestValidationEnumMembership(t *testing.T) {
	r := newTestRegistry(0)

	_, err := r.Execute(context.Background(), "set_driving_mode", map[string]any{"mode": "ludicrous"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "invalid value for parameter mode")

	result, err := r.Execute(context.Background(), "set_driving_mode", map[string]any{"mode": "sport"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "sport", r.State().String("driving_mode"))
}

func TestValidationTypeMismatch(t *testing.T) {
	r := newTestRegistry(0)

	_, err := r.Execute(context.Background(), "set_volume", map[string]any{"volume": "loud"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "invalid type for parameter volume")
}

func TestDefaultsFilledForOptionalParams(t *testing.T) {
	r := newTestRegistry(0)

	// zone defaults to driver.
	result, err := r.Execute(context.Background(), "set_temperature", map[string]any{"temperature": 22.0})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 22.0, r.State().Number("temperature_driver"))
}

func TestJSONNumbersAcceptedForIntegerParams(t *testing.T) {
	r := newTestRegistry(0)

	// JSON decoding produces float64 for whole numbers.
	result, err := r.Execute(context.Background(), "set_volume", map[string]any{"volume": float64(30)})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCategoryIndex(t *testing.T) {
	r := newTestRegistry(0)

	names := r.List(CategoryEntertainment)
	assert.Contains(t, names, "play_music")
	assert.Contains(t, names, "set_volume")
	assert.NotContains(t, names, "navigate_to")

	all := r.List("")
	assert.Greater(t, len(all), 30)
}

func TestProviderDefsFilteredByCategory(t *testing.T) {
	r := newTestRegistry(0)

	defs := r.ProviderDefs(CategoryNavigation)
	require.NotEmpty(t, defs)
	for _, d := range defs {
		assert.Equal(t, "function", d.Type)
	}

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Function.Name)
	}
	assert.Contains(t, names, "navigate_to")
	assert.NotContains(t, names, "play_music")
}

func TestProviderDefsDeterministicOrder(t *testing.T) {
	r := newTestRegistry(0)

	first := r.ProviderDefs()
	second := r.ProviderDefs()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Function.Name, second[i].Function.Name)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	r := newTestRegistry(2)

	okCount := 0
	for range 5 {
		result, err := r.Execute(context.Background(), "turn_on_ac", nil)
		require.NoError(t, err)
		if result.Success {
			okCount++
		} else {
			assert.Contains(t, result.Message, "rate limit")
		}
	}
	assert.LessOrEqual(t, okCount, 2)
	assert.Greater(t, okCount, 0)
}

func TestHandlerFailureReturnedInResult(t *testing.T) {
	r := newTestRegistry(0)

	result, err := r.Execute(context.Background(), "set_fan_speed", map[string]any{"speed": 9})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "1-7")
}
