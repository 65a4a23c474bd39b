package mdt

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		requested   float64
		soft, hard  float64
		wantApplied float64
		wantClamped bool
	}{
		{"within limits", 50, 100, 150, 50, false},
		{"above soft limit", 120, 100, 150, 100, true},
		{"negative", -5, 100, 150, 0, true},
		{"soft limit above hard max", 200, 180, 150, 150, true},
		{"hard parameter above constant", 170, 200, 300, 150, true},
		{"hard below soft", 90, 100, 80, 80, true},
		{"zero", 0, 100, 150, 0, false},
		{"exactly at ceiling", 100, 100, 150, 100, false},
		{"NaN", math.NaN(), 100, 150, 0, true},
		{"positive infinity", math.Inf(1), 100, 150, 100, true},
		{"negative infinity", math.Inf(-1), 100, 150, 0, true},
		{"negative soft limit", 10, -20, 150, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc := Evaluate(AxisX, tt.requested, tt.soft, tt.hard)
			assert.Equal(t, AxisX, vc.Axis)
			assert.Equal(t, tt.wantApplied, vc.Applied)
			assert.Equal(t, tt.wantClamped, vc.Clamped)
			if !math.IsNaN(tt.requested) {
				assert.Equal(t, tt.requested, vc.Requested)
			}
		})
	}
}

func TestEvaluateProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		requested := r.Float64()*400 - 100
		soft := r.Float64() * 300
		hard := r.Float64() * 300

		vc := Evaluate(AxisY, requested, soft, hard)
		top := math.Min(math.Min(soft, hard), HardMaxVoltage)

		require.GreaterOrEqual(t, vc.Applied, 0.0)
		require.LessOrEqual(t, vc.Applied, top)
		require.LessOrEqual(t, vc.Applied, HardMaxVoltage)
		require.Equal(t, vc.Applied != requested, vc.Clamped)
		if requested >= 0 && requested <= top {
			require.Equal(t, requested, vc.Applied)
		}
	}
}

func TestNewLimits(t *testing.T) {
	l, err := NewLimits(120)
	require.NoError(t, err)
	assert.Equal(t, 120.0, l.Soft)
	assert.Equal(t, HardMaxVoltage, l.Hard)
	assert.Equal(t, 120.0, l.Ceiling())

	l, err = NewLimits(180)
	require.NoError(t, err)
	assert.Equal(t, HardMaxVoltage, l.Ceiling())

	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewLimits(bad)
		assert.True(t, errors.Is(err, ErrInvalidLimit), "NewLimits(%v) = %v", bad, err)
	}

	assert.Equal(t, Limits{Soft: 100, Hard: 150}, DefaultLimits())
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": AxisX, "X": AxisX, " y ": AxisY, "z": AxisZ} {
		got, err := ParseAxis(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "w", "xy", "1"} {
		_, err := ParseAxis(in)
		assert.ErrorIs(t, err, ErrInvalidAxis, in)
	}

	assert.True(t, AxisZ.Valid())
	assert.False(t, Axis("W").Valid())
}
