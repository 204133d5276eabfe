// Package engagement tracks the device-scoped reading streak, badges, and
// share counters on the guest store.
package engagement

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

const dayFormat = "2006-01-02"

// badgeRule awards a badge when a counter reaches its threshold
type badgeRule struct {
	ID        string
	Threshold int
	Counter   func(domain.EngagementStats) int
}

var badgeRules = []badgeRule{
	{ID: "streak-3", Threshold: 3, Counter: func(s domain.EngagementStats) int { return s.CurrentStreak }},
	{ID: "streak-7", Threshold: 7, Counter: func(s domain.EngagementStats) int { return s.CurrentStreak }},
	{ID: "streak-30", Threshold: 30, Counter: func(s domain.EngagementStats) int { return s.CurrentStreak }},
	{ID: "first-share", Threshold: 1, Counter: func(s domain.EngagementStats) int { return s.ShareCount }},
	{ID: "sharer-10", Threshold: 10, Counter: func(s domain.EngagementStats) int { return s.ShareCount }},
}

// ShareEvent records one share action
type ShareEvent struct {
	ID       string         `json:"id"`
	StoryID  domain.StoryID `json:"storyId"`
	SharedAt int64          `json:"sharedAt"`
}

// Service owns the engagement counters
type Service struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewService creates an engagement service
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// Stats returns the current counters
func (s *Service) Stats() domain.EngagementStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// RecordReadingDay extends or restarts the streak for today's date.
// Reading again on the same day is a no-op.
func (s *Service) RecordReadingDay() domain.EngagementStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.load()
	today := s.now().Format(dayFormat)
	yesterday := s.now().AddDate(0, 0, -1).Format(dayFormat)

	switch stats.LastReadDay {
	case today:
		return stats
	case yesterday:
		stats.CurrentStreak++
	default:
		stats.CurrentStreak = 1
	}
	stats.LastReadDay = today
	if stats.CurrentStreak > stats.BestStreak {
		stats.BestStreak = stats.CurrentStreak
	}

	stats = s.awardBadges(stats)
	s.save(stats)
	return stats
}

// RecordShare counts a share of the given story and updates its social
// overlay.
func (s *Service) RecordShare(storyID domain.StoryID) domain.EngagementStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.load()
	stats.ShareCount++
	stats = s.awardBadges(stats)
	s.save(stats)

	var overlay domain.SocialOverlay
	s.store.GetSocial(storyID.String(), &overlay)
	overlay.Shares++
	if err := s.store.PutSocial(storyID.String(), overlay); err != nil {
		s.logger.Warn("social overlay write failed", "storyId", storyID, "error", err)
	}

	event := ShareEvent{ID: uuid.NewString(), StoryID: storyID, SharedAt: s.now().Unix()}
	s.logger.Info("story shared", "storyId", storyID, "eventId", event.ID, "totalShares", stats.ShareCount)
	return stats
}

// ToggleLike flips the local like overlay for a story
func (s *Service) ToggleLike(storyID domain.StoryID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overlay domain.SocialOverlay
	s.store.GetSocial(storyID.String(), &overlay)
	overlay.Liked = !overlay.Liked
	if err := s.store.PutSocial(storyID.String(), overlay); err != nil {
		s.logger.Warn("social overlay write failed", "storyId", storyID, "error", err)
	}
	return overlay.Liked
}

// FirstRun reports whether this device has seen the app before, marking it
// onboarded as a side effect.
func (s *Service) FirstRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store.GetFlag(store.KeyOnboarded); ok {
		return false
	}
	if err := s.store.SetFlag(store.KeyOnboarded, s.now().Unix()); err != nil {
		s.logger.Warn("onboarded flag write failed", "error", err)
	}
	return true
}

// ReminderDue reports whether the keep-your-streak reminder should show:
// there is a streak to keep, nothing was read today, and the reminder was
// not already dismissed today.
func (s *Service) ReminderDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.load()
	today := s.now().Format(dayFormat)
	if stats.CurrentStreak == 0 || stats.LastReadDay == today {
		return false
	}
	if at, ok := s.store.GetFlag(store.KeyReminderDismissed); ok {
		if time.Unix(at, 0).Format(dayFormat) == today {
			return false
		}
	}
	return true
}

// DismissReminder silences the streak reminder for the rest of the day
func (s *Service) DismissReminder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetFlag(store.KeyReminderDismissed, s.now().Unix()); err != nil {
		s.logger.Warn("reminder dismissal write failed", "error", err)
	}
}

// SyncPromptDue reports whether the sign-in suggestion should show. Once
// dismissed it stays dismissed.
func (s *Service) SyncPromptDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dismissed := s.store.GetFlag(store.KeyInstallDismissed)
	return !dismissed
}

// DismissSyncPrompt permanently hides the sign-in suggestion
func (s *Service) DismissSyncPrompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.SetFlag(store.KeyInstallDismissed, s.now().Unix()); err != nil {
		s.logger.Warn("sync prompt dismissal write failed", "error", err)
	}
}

func (s *Service) load() domain.EngagementStats {
	var stats domain.EngagementStats
	s.store.GetGuest(store.KeyEngagement, &stats)
	return stats
}

func (s *Service) save(stats domain.EngagementStats) {
	if err := s.store.PutGuest(store.KeyEngagement, stats); err != nil {
		s.logger.Warn("engagement stats write failed", "error", err)
	}
}

func (s *Service) awardBadges(stats domain.EngagementStats) domain.EngagementStats {
	have := make(map[string]struct{}, len(stats.Badges))
	for _, id := range stats.Badges {
		have[id] = struct{}{}
	}
	for _, rule := range badgeRules {
		if _, ok := have[rule.ID]; ok {
			continue
		}
		if rule.Counter(stats) >= rule.Threshold {
			stats.Badges = append(stats.Badges, rule.ID)
			s.logger.Info("badge awarded", "badge", rule.ID)
		}
	}
	return stats
}

// Describe returns a short label for a badge ID
func Describe(badgeID string) string {
	switch badgeID {
	case "streak-3":
		return "3-day streak"
	case "streak-7":
		return "7-day streak"
	case "streak-30":
		return "30-day streak"
	case "first-share":
		return "first share"
	case "sharer-10":
		return "10 shares"
	}
	return fmt.Sprintf("badge %s", badgeID)
}
