package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

// Drafts is the per-domain accessor for authored story drafts. Guest
// drafts expire domain.DraftTTL after creation; every read lazily prunes
// expired drafts and persists the pruned list back, so there is no
// background timer.
type Drafts struct {
	session *Session
	now     func() time.Time

	mu sync.Mutex
}

// NewDrafts creates the drafts accessor
func NewDrafts(session *Session) *Drafts {
	return &Drafts{session: session, now: time.Now}
}

// List returns the live drafts. On the guest tier expired drafts are
// removed from storage as a side effect.
func (d *Drafts) List(ctx context.Context) []domain.Draft {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.session.source() {
	case sourceRemote:
		drafts, err := d.session.remote.ListDrafts(ctx)
		if err != nil {
			d.session.warnOnce("drafts", "drafts unavailable, serving empty list", err)
			return nil
		}
		return drafts
	case sourceGuest:
		fallthrough
	default:
		return d.guestList()
	}
}

// Create adds a new draft and returns it
func (d *Drafts) Create(ctx context.Context, title, content string, lang domain.Language) (*domain.Draft, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	draft := domain.Draft{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Language:  lang,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(domain.DraftTTL).Unix(),
	}

	switch d.session.source() {
	case sourceRemote:
		created, err := d.session.remote.CreateDraft(ctx, draft)
		if err != nil {
			return nil, fmt.Errorf("create draft: %w", err)
		}
		return created, nil
	case sourceGuest:
		fallthrough
	default:
		drafts := append(d.guestList(), draft)
		if err := d.session.store.PutGuest(store.KeyDrafts, drafts); err != nil {
			return nil, fmt.Errorf("create draft: %w", err)
		}
		return &draft, nil
	}
}

// guestList reads the guest drafts, prunes expired ones, and persists the
// pruned list back when anything was removed. Callers hold d.mu.
func (d *Drafts) guestList() []domain.Draft {
	var drafts []domain.Draft
	d.session.store.GetGuest(store.KeyDrafts, &drafts)

	now := d.now()
	live := drafts[:0]
	for _, draft := range drafts {
		if draft.Expired(now) {
			continue
		}
		live = append(live, draft)
	}
	if len(live) != len(drafts) {
		if err := d.session.store.PutGuest(store.KeyDrafts, live); err != nil {
			d.session.warnOnce("drafts-prune", "failed to persist pruned drafts", err)
		}
	}
	return live
}
