package domain

import "context"

// StoryRepository fetches catalog content from the remote story service
type StoryRepository interface {
	// ListStories returns one page of the catalog for a language/audience
	// pair plus the total item count for pagination.
	ListStories(ctx context.Context, lang Language, audience Audience, offset, limit int) ([]Story, int, error)

	// GetStory returns a single story with full content
	GetStory(ctx context.Context, id StoryID) (*Story, error)
}

// UserRepository is the minimum remote surface the state reconciler needs.
// There is deliberately no partial-update primitive: ReplaceUser and
// ReplaceProfile are full-record replaces.
type UserRepository interface {
	GetUser(ctx context.Context) (*UserRecord, error)
	ReplaceUser(ctx context.Context, record *UserRecord) error

	GetFavorites(ctx context.Context) ([]StoryID, error)
	ToggleFavorite(ctx context.Context, id StoryID) error

	GetProfile(ctx context.Context) (*Profile, error)
	ReplaceProfile(ctx context.Context, profile *Profile) error

	ListDrafts(ctx context.Context) ([]Draft, error)
	CreateDraft(ctx context.Context, draft Draft) (*Draft, error)
}
