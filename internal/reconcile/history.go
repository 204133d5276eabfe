package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

// maxHistoryEntries caps the reading history length
const maxHistoryEntries = 50

// History is the per-domain accessor for the reading history: a
// most-recent-first list capped at maxHistoryEntries, one entry per story.
type History struct {
	session *Session

	mu sync.Mutex
}

// NewHistory creates the reading-history accessor
func NewHistory(session *Session) *History {
	return &History{session: session}
}

// List returns the history, most recent first
func (h *History) List(ctx context.Context) []domain.HistoryEntry {
	switch h.session.source() {
	case sourceRemote:
		record, err := h.session.userRecord(ctx)
		if err != nil {
			h.session.warnOnce("history", "reading history unavailable, serving empty list", err)
			return nil
		}
		return record.History
	case sourceGuest:
		fallthrough
	default:
		var history []domain.HistoryEntry
		h.session.store.GetGuest(store.KeyHistory, &history)
		return history
	}
}

// Record prepends a reading session. An existing entry for the same story
// is removed first, so the newest occurrence wins position and no story
// appears twice.
func (h *History) Record(ctx context.Context, entry domain.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.session.source() {
	case sourceRemote:
		err := h.session.updateUserRecord(ctx, func(record *domain.UserRecord) {
			record.History = prependEntry(record.History, entry)
		})
		if err != nil {
			return fmt.Errorf("record history for story %s: %w", entry.StoryID, err)
		}
		return nil
	case sourceGuest:
		fallthrough
	default:
		var history []domain.HistoryEntry
		h.session.store.GetGuest(store.KeyHistory, &history)
		return h.session.store.PutGuest(store.KeyHistory, prependEntry(history, entry))
	}
}

func prependEntry(history []domain.HistoryEntry, entry domain.HistoryEntry) []domain.HistoryEntry {
	deduped := make([]domain.HistoryEntry, 0, len(history)+1)
	deduped = append(deduped, entry)
	for _, existing := range history {
		if existing.StoryID == entry.StoryID {
			continue
		}
		deduped = append(deduped, existing)
	}
	if len(deduped) > maxHistoryEntries {
		deduped = deduped[:maxHistoryEntries]
	}
	return deduped
}
