package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var kst = time.FixedZone("KST", 9*60*60)

func TestParseWindowDefaults(t *testing.T) {
	w, err := ParseWindow("09:00", "15:30", []string{"Mon", "tue", "wednesday", "thu", "fri"}, kst)
	require.NoError(t, err)

	friday := time.Date(2026, 10, 16, 0, 0, 0, 0, kst)
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"open", friday.Add(9 * time.Hour), true},
		{"before open", friday.Add(8*time.Hour + 59*time.Minute), false},
		{"last minute", friday.Add(15*time.Hour + 29*time.Minute), true},
		{"close is exclusive", friday.Add(15*time.Hour + 30*time.Minute), false},
		{"saturday", friday.AddDate(0, 0, 1).Add(10 * time.Hour), false},
		{"utc input is converted", time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, w.Contains(tc.at))
		})
	}
}

func TestParseWindowRejectsBadInput(t *testing.T) {
	_, err := ParseWindow("15:30", "09:00", nil, kst)
	require.Error(t, err)

	_, err = ParseWindow("9am", "", nil, kst)
	require.Error(t, err)

	_, err = ParseWindow("", "", []string{"funday"}, kst)
	require.Error(t, err)
}

func TestNilWindowAllowsEverything(t *testing.T) {
	var w *ActiveWindow
	require.True(t, w.Contains(time.Now()))
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	require.Error(t, err)
}

func TestNextTickAligns(t *testing.T) {
	s, err := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 10, 16, 1, 2, 3, 0, time.UTC)
	require.Equal(t, time.Date(2026, 10, 16, 1, 5, 0, 0, time.UTC), s.nextTick(now))
	require.Equal(t, time.Date(2026, 10, 16, 1, 10, 0, 0, time.UTC), s.nextTick(time.Date(2026, 10, 16, 1, 5, 0, 0, time.UTC)))
}

func TestRunInvokesTickUntilCancelled(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	err = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		if ticks.Add(1) == 3 {
			cancel()
		}
		return errors.New("tick errors are logged, not fatal")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(3), ticks.Load())
}

func TestRunSkipsOutsideWindow(t *testing.T) {
	closed, err := ParseWindow("", "", []string{"sun"}, kst)
	require.NoError(t, err)

	s, err := New(Options{Interval: 5 * time.Millisecond, Window: closed}, zerolog.Nop())
	require.NoError(t, err)
	// pin the clock to a Friday so every tick falls outside the window
	friday := time.Date(2026, 10, 16, 10, 0, 0, 0, kst)
	s.now = func() time.Time { return friday }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var ticks atomic.Int32
	err = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, ticks.Load())
}
