package vehicle

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ State = (*Simulator)(nil)

func TestSimulator_AllAttributes(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSimulator(WithClock(clock.now))
	defer s.Close()
	ctx := context.Background()

	relative, err := s.GlobalRelativeFrame(ctx)
	require.NoError(t, err)
	global, err := s.GlobalFrame(ctx)
	require.NoError(t, err)

	assert.Equal(t, relative.Latitude, global.Latitude)
	assert.Equal(t, relative.Longitude, global.Longitude)
	assert.Greater(t, global.Altitude, relative.Altitude)
	assert.InDelta(t, homeLatitude, relative.Latitude, 0.01)
	assert.InDelta(t, homeLongitude, relative.Longitude, 0.01)

	mode, err := s.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GUIDED", mode)

	gps, err := s.GPS(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, gps.FixType)

	heading, err := s.Heading(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, heading, 0)
	assert.Less(t, heading, 360)
}

func TestSimulator_Loiters(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSimulator(WithClock(clock.now))
	ctx := context.Background()

	first, err := s.GlobalRelativeFrame(ctx)
	require.NoError(t, err)

	clock.t = clock.t.Add(loiterPeriod / 4)
	quarter, err := s.GlobalRelativeFrame(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, quarter)

	clock.t = clock.t.Add(3 * loiterPeriod / 4)
	full, err := s.GlobalRelativeFrame(ctx)
	require.NoError(t, err)
	assert.InDelta(t, first.Latitude, full.Latitude, 1e-9)
	assert.InDelta(t, first.Longitude, full.Longitude, 1e-9)

	v, err := s.Velocity(ctx)
	require.NoError(t, err)
	gs, err := s.GroundSpeed(ctx)
	require.NoError(t, err)
	assert.InDelta(t, gs, math.Hypot(v[0], v[1]), 1e-9)
}

func TestSimulator_BatteryDrains(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSimulator(WithClock(clock.now))

	full, err := s.BatteryVoltage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batteryFull, full)

	clock.t = clock.t.Add(10 * time.Minute)
	drained, err := s.BatteryVoltage(context.Background())
	require.NoError(t, err)
	assert.Less(t, drained, full)
}

func TestSimulator_FailureRate(t *testing.T) {
	ctx := context.Background()

	always := NewSimulator(WithFailureRate(1))
	_, err := always.Mode(ctx)
	assert.True(t, errors.Is(err, ErrUnavailable))

	never := NewSimulator(WithFailureRate(0))
	for i := 0; i < 100; i++ {
		_, err = never.Mode(ctx)
		require.NoError(t, err)
	}
}

func TestSimulator_SeededFaultsAreReproducible(t *testing.T) {
	ctx := context.Background()
	outcomes := func() []bool {
		s := NewSimulator(WithFailureRate(0.5), WithSeed(42))
		var out []bool
		for i := 0; i < 50; i++ {
			_, err := s.Armed(ctx)
			out = append(out, err == nil)
		}
		return out
	}

	first := outcomes()
	assert.Equal(t, first, outcomes())
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)
}
