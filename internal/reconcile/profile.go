package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

// ProfilePatch carries only the profile fields to change; nil fields keep
// the current value.
type ProfilePatch struct {
	DisplayName *string
	AvatarURL   *string
	Bio         *string
}

// Profile is the per-domain accessor for the user's public details
type Profile struct {
	session *Session

	mu sync.Mutex
}

// NewProfile creates the profile accessor
func NewProfile(session *Session) *Profile {
	return &Profile{session: session}
}

// Get returns the effective profile, empty when nothing is stored
func (p *Profile) Get(ctx context.Context) domain.Profile {
	switch p.session.source() {
	case sourceRemote:
		record, err := p.session.userRecord(ctx)
		if err != nil {
			p.session.warnOnce("profile", "profile unavailable, serving empty profile", err)
			return domain.Profile{}
		}
		return record.Profile
	case sourceGuest:
		fallthrough
	default:
		var profile domain.Profile
		p.session.store.GetGuest(store.KeyProfile, &profile)
		return profile
	}
}

// Update shallow-merges the patch and persists the full profile
func (p *Profile) Update(ctx context.Context, patch ProfilePatch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.session.source() {
	case sourceRemote:
		record, err := p.session.userRecord(ctx)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		merged := applyProfilePatch(record.Profile, patch)
		if err := p.session.remote.ReplaceProfile(ctx, &merged); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		p.session.invalidate()
		return nil
	case sourceGuest:
		fallthrough
	default:
		var profile domain.Profile
		p.session.store.GetGuest(store.KeyProfile, &profile)
		return p.session.store.PutGuest(store.KeyProfile, applyProfilePatch(profile, patch))
	}
}

func applyProfilePatch(current domain.Profile, patch ProfilePatch) domain.Profile {
	merged := current
	if patch.DisplayName != nil {
		merged.DisplayName = *patch.DisplayName
	}
	if patch.AvatarURL != nil {
		merged.AvatarURL = *patch.AvatarURL
	}
	if patch.Bio != nil {
		merged.Bio = *patch.Bio
	}
	return merged
}
