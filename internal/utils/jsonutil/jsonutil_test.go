package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeMaps(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]any
		delta    map[string]any
		expected map[string]any
	}{
		{
			name:     "delta wins on scalar conflict",
			base:     map[string]any{"style": "modern", "floors": 2},
			delta:    map[string]any{"style": "brutalist"},
			expected: map[string]any{"style": "brutalist", "floors": 2},
		},
		{
			name: "nested maps merge instead of replace",
			base: map[string]any{
				"styleCodes": map[string]any{"lightingStyle": "golden hour", "materialStyle": "concrete"},
			},
			delta: map[string]any{
				"styleCodes": map[string]any{"materialStyle": "timber", "architecturalStyle": "scandinavian"},
			},
			expected: map[string]any{
				"styleCodes": map[string]any{
					"lightingStyle":      "golden hour",
					"materialStyle":      "timber",
					"architecturalStyle": "scandinavian",
				},
			},
		},
		{
			name:     "scalar replaces nested map",
			base:     map[string]any{"geometry": map[string]any{"perspective": "aerial"}},
			delta:    map[string]any{"geometry": "unknown"},
			expected: map[string]any{"geometry": "unknown"},
		},
		{
			name:     "nil base",
			base:     nil,
			delta:    map[string]any{"style": "modern"},
			expected: map[string]any{"style": "modern"},
		},
		{
			name:     "nil delta preserves base",
			base:     map[string]any{"style": "modern"},
			delta:    nil,
			expected: map[string]any{"style": "modern"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MergeMaps(tt.base, tt.delta))
		})
	}
}

func TestMergeMapsDoesNotMutateInputs(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1}}
	delta := map[string]any{"a": map[string]any{"y": 2}}

	out := MergeMaps(base, delta)

	require.Equal(t, map[string]any{"a": map[string]any{"x": 1}}, base)
	require.Equal(t, map[string]any{"a": map[string]any{"y": 2}}, delta)
	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1, "y": 2}}, out)
}

func TestMapToStructRoundTrip(t *testing.T) {
	type settings struct {
		Quality     string `json:"quality"`
		AspectRatio string `json:"aspect_ratio"`
	}

	var target settings
	err := MapToStruct(map[string]any{"quality": "high", "aspect_ratio": "16:9"}, &target)
	require.NoError(t, err)
	assert.Equal(t, settings{Quality: "high", AspectRatio: "16:9"}, target)

	back, err := StructToMap(target)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"quality": "high", "aspect_ratio": "16:9"}, back)
}
