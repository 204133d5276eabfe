package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

// PreferencesPatch carries only the preference keys a caller wants to
// change; nil fields leave the current value alone. A nil Categories slice
// is "unchanged", an empty one clears the list.
type PreferencesPatch struct {
	Language   *domain.Language
	Mode       *domain.Audience
	FontSize   *int
	Background *string
	AutoScroll *bool
	Categories []string
}

// Preferences is the per-domain accessor for reading preferences.
// Patches merge key-by-key into the current record, so changing one
// preference never clobbers siblings set elsewhere.
type Preferences struct {
	session *Session

	mu sync.Mutex
}

// NewPreferences creates the preferences accessor
func NewPreferences(session *Session) *Preferences {
	return &Preferences{session: session}
}

// Get returns the effective preferences, falling back to the defaults
func (p *Preferences) Get(ctx context.Context) domain.Preferences {
	switch p.session.source() {
	case sourceRemote:
		record, err := p.session.userRecord(ctx)
		if err != nil {
			p.session.warnOnce("preferences", "preferences unavailable, serving defaults", err)
			return domain.DefaultPreferences()
		}
		return record.Preferences
	case sourceGuest:
		fallthrough
	default:
		prefs := domain.DefaultPreferences()
		p.session.store.GetGuest(store.KeyPreferences, &prefs)
		return prefs
	}
}

// Update merges the patch into the current preferences and persists the
// result.
func (p *Preferences) Update(ctx context.Context, patch PreferencesPatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.session.source() {
	case sourceRemote:
		err := p.session.updateUserRecord(ctx, func(record *domain.UserRecord) {
			record.Preferences = applyPreferencesPatch(record.Preferences, patch)
		})
		if err != nil {
			return fmt.Errorf("update preferences: %w", err)
		}
		return nil
	case sourceGuest:
		fallthrough
	default:
		prefs := domain.DefaultPreferences()
		p.session.store.GetGuest(store.KeyPreferences, &prefs)
		return p.session.store.PutGuest(store.KeyPreferences, applyPreferencesPatch(prefs, patch))
	}
}

func applyPreferencesPatch(current domain.Preferences, patch PreferencesPatch) domain.Preferences {
	merged := current
	if patch.Language != nil {
		merged.Language = *patch.Language
	}
	if patch.Mode != nil {
		merged.Mode = *patch.Mode
	}
	if patch.FontSize != nil {
		merged.FontSize = *patch.FontSize
	}
	if patch.Background != nil {
		merged.Background = *patch.Background
	}
	if patch.AutoScroll != nil {
		merged.AutoScroll = *patch.AutoScroll
	}
	if patch.Categories != nil {
		merged.Categories = patch.Categories
	}
	return merged
}
