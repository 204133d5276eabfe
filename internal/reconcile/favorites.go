package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

// Favorites is the per-domain accessor for the favorite-story set.
// Toggle is atomic from the caller's perspective: writes are serialized on
// the accessor, so a rapid double-toggle nets out to the original set.
type Favorites struct {
	session *Session

	mu sync.Mutex
}

// NewFavorites creates the favorites accessor
func NewFavorites(session *Session) *Favorites {
	return &Favorites{session: session}
}

// List returns the current favorite story IDs. Remote read failures
// degrade to the empty set; they never block the caller.
func (f *Favorites) List(ctx context.Context) []domain.StoryID {
	switch f.session.source() {
	case sourceRemote:
		record, err := f.session.userRecord(ctx)
		if err != nil {
			f.session.warnOnce("favorites", "favorites unavailable, serving empty set", err)
			return nil
		}
		return record.Favorites
	case sourceGuest:
		fallthrough
	default:
		var favorites []domain.StoryID
		f.session.store.GetGuest(store.KeyFavorites, &favorites)
		return favorites
	}
}

// Contains reports whether id is currently favorited
func (f *Favorites) Contains(ctx context.Context, id domain.StoryID) bool {
	for _, fav := range f.List(ctx) {
		if fav == id {
			return true
		}
	}
	return false
}

// Toggle removes id if present, else adds it
func (f *Favorites) Toggle(ctx context.Context, id domain.StoryID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.session.source() {
	case sourceRemote:
		if err := f.session.remote.ToggleFavorite(ctx, id); err != nil {
			return fmt.Errorf("toggle favorite %s: %w", id, err)
		}
		f.session.invalidate()
		return nil
	case sourceGuest:
		fallthrough
	default:
		var favorites []domain.StoryID
		f.session.store.GetGuest(store.KeyFavorites, &favorites)
		favorites = toggleID(favorites, id)
		return f.session.store.PutGuest(store.KeyFavorites, favorites)
	}
}

// ImportGuest merges the guest favorite set into the authenticated user's
// remote favorites (union). The guest copy is left untouched so logging
// out restores it. This is the explicit, user-triggered migration path;
// nothing imports automatically on login.
func (f *Favorites) ImportGuest(ctx context.Context) error {
	if f.session.source() != sourceRemote {
		return domain.ErrNotAuthenticated
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var guest []domain.StoryID
	f.session.store.GetGuest(store.KeyFavorites, &guest)
	if len(guest) == 0 {
		return nil
	}

	record, err := f.session.userRecord(ctx)
	if err != nil {
		return err
	}
	remote := make(map[domain.StoryID]struct{}, len(record.Favorites))
	for _, id := range record.Favorites {
		remote[id] = struct{}{}
	}

	for _, id := range guest {
		if _, ok := remote[id]; ok {
			continue
		}
		if err := f.session.remote.ToggleFavorite(ctx, id); err != nil {
			f.session.invalidate()
			return fmt.Errorf("import guest favorite %s: %w", id, err)
		}
	}
	f.session.invalidate()
	return nil
}

func toggleID(ids []domain.StoryID, id domain.StoryID) []domain.StoryID {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return append(ids, id)
}
