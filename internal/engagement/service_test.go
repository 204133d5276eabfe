package engagement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open("", nil)
	require.NoError(t, err)
	return NewService(st, nil)
}

func TestStreakGrowsOnConsecutiveDays(t *testing.T) {
	svc := newTestService(t)
	day := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	stats := svc.RecordReadingDay()
	assert.Equal(t, 1, stats.CurrentStreak)

	// Same day again: no change
	stats = svc.RecordReadingDay()
	assert.Equal(t, 1, stats.CurrentStreak)

	for i := 1; i <= 6; i++ {
		day = day.AddDate(0, 0, 1)
		stats = svc.RecordReadingDay()
	}
	assert.Equal(t, 7, stats.CurrentStreak)
	assert.Equal(t, 7, stats.BestStreak)
	assert.Contains(t, stats.Badges, "streak-3")
	assert.Contains(t, stats.Badges, "streak-7")
}

func TestStreakResetsAfterGap(t *testing.T) {
	svc := newTestService(t)
	day := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	svc.RecordReadingDay()
	day = day.AddDate(0, 0, 1)
	stats := svc.RecordReadingDay()
	assert.Equal(t, 2, stats.CurrentStreak)

	day = day.AddDate(0, 0, 3) // missed two days
	stats = svc.RecordReadingDay()
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 2, stats.BestStreak, "best streak survives the reset")
}

func TestShareCounterAndOverlay(t *testing.T) {
	svc := newTestService(t)

	stats := svc.RecordShare(42)
	assert.Equal(t, 1, stats.ShareCount)
	assert.Contains(t, stats.Badges, "first-share")

	var overlay domain.SocialOverlay
	require.True(t, svc.store.GetSocial("42", &overlay))
	assert.Equal(t, 1, overlay.Shares)
}

func TestToggleLike(t *testing.T) {
	svc := newTestService(t)
	assert.True(t, svc.ToggleLike(7))
	assert.False(t, svc.ToggleLike(7))
}

func TestFirstRunReportsOnce(t *testing.T) {
	svc := newTestService(t)
	assert.True(t, svc.FirstRun())
	assert.False(t, svc.FirstRun())
}

func TestReminderDueFollowsStreakAndDismissal(t *testing.T) {
	svc := newTestService(t)
	day := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	// No streak yet: nothing to remind about
	assert.False(t, svc.ReminderDue())

	svc.RecordReadingDay()
	assert.False(t, svc.ReminderDue(), "already read today")

	day = day.AddDate(0, 0, 1)
	assert.True(t, svc.ReminderDue())

	svc.DismissReminder()
	assert.False(t, svc.ReminderDue(), "dismissed for the day")

	day = day.AddDate(0, 0, 1)
	assert.True(t, svc.ReminderDue(), "dismissal only lasts the day")
}

func TestSyncPromptDismissalIsPermanent(t *testing.T) {
	svc := newTestService(t)
	assert.True(t, svc.SyncPromptDue())
	svc.DismissSyncPrompt()
	assert.False(t, svc.SyncPromptDue())
}

func TestBadgesAwardedOnce(t *testing.T) {
	svc := newTestService(t)
	svc.RecordShare(1)
	stats := svc.RecordShare(2)

	count := 0
	for _, b := range stats.Badges {
		if b == "first-share" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
