package refresh_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"farewatch/internal/refresh"
)

func TestNextFire(t *testing.T) {
	hours := refresh.DefaultRefreshHours
	day := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.Local)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before first hour", day(6, 30), day(8, 0)},
		{"between hours", day(13, 15), day(16, 0)},
		{"exactly on an hour picks the next", day(12, 0), day(16, 0)},
		{"just before last hour", day(19, 59), day(20, 0)},
		{"after last hour rolls to tomorrow", day(21, 0), day(8, 0).AddDate(0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, refresh.NextFire(tt.now, hours))
		})
	}
}

func TestNextFire_UnsortedHoursStillPicksEarliest(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	got := refresh.NextFire(now, []int{20, 12, 8, 16})
	assert.Equal(t, 12, got.Hour())
}

func TestScheduler_StateTransitions(t *testing.T) {
	s := refresh.NewScheduler(func(context.Context) {}, nil, discardLogger())
	assert.Equal(t, refresh.StateIdle, s.State())

	s.Start()
	assert.Equal(t, refresh.StateArmed, s.State())
	assert.False(t, s.Next().IsZero())
	assert.True(t, s.Next().After(time.Now()))

	// Start while armed is a no-op.
	next := s.Next()
	s.Start()
	assert.Equal(t, next, s.Next())

	s.Stop()
	assert.Equal(t, refresh.StateIdle, s.State())

	// Stop while idle is safe.
	s.Stop()
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	s := refresh.NewScheduler(func(context.Context) {}, []int{8, 12, 16, 20}, discardLogger())
	s.Start()
	s.Stop()
	s.Start()
	assert.Equal(t, refresh.StateArmed, s.State())
	s.Stop()
}
