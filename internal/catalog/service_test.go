package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

type fakeStoryRepo struct {
	stories []domain.Story
	fail    bool
	calls   int
}

func (r *fakeStoryRepo) ListStories(ctx context.Context, lang domain.Language, audience domain.Audience, offset, limit int) ([]domain.Story, int, error) {
	r.calls++
	if r.fail {
		return nil, 0, domain.ErrServerOffline
	}
	if offset >= len(r.stories) {
		return nil, len(r.stories), nil
	}
	end := offset + limit
	if end > len(r.stories) {
		end = len(r.stories)
	}
	return r.stories[offset:end], len(r.stories), nil
}

func (r *fakeStoryRepo) GetStory(ctx context.Context, id domain.StoryID) (*domain.Story, error) {
	if r.fail {
		return nil, domain.ErrServerOffline
	}
	for i := range r.stories {
		if r.stories[i].ID == id {
			return &r.stories[i], nil
		}
	}
	return nil, domain.ErrStoryNotFound
}

func makeStories(n int) []domain.Story {
	stories := make([]domain.Story, n)
	for i := range stories {
		stories[i] = domain.Story{
			ID:       domain.StoryID(i + 1),
			Title:    "story",
			Language: domain.LanguageTamil,
			Audience: domain.AudienceKids,
		}
	}
	return stories
}

func TestStoriesPaginatesAndCaches(t *testing.T) {
	st, err := store.Open("", nil)
	require.NoError(t, err)
	repo := &fakeStoryRepo{stories: makeStories(120)}
	svc := NewService(repo, st, nil)

	ctx := context.Background()
	got, err := svc.Stories(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)
	assert.Len(t, got, 120)
	assert.Equal(t, 3, repo.calls, "three pages of 50")

	// Second read serves from memory
	_, err = svc.Stories(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
}

func TestStoriesFallBackToSnapshotWhenOffline(t *testing.T) {
	st, err := store.Open("", nil)
	require.NoError(t, err)
	repo := &fakeStoryRepo{stories: makeStories(10)}
	svc := NewService(repo, st, nil)
	ctx := context.Background()

	_, err = svc.Stories(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)

	// Expire the memory tier and go offline
	svc.memoryTTL = 0
	repo.fail = true

	got, err := svc.Stories(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestStoriesColdAndOfflineSurfacesError(t *testing.T) {
	st, err := store.Open("", nil)
	require.NoError(t, err)
	repo := &fakeStoryRepo{fail: true}
	svc := NewService(repo, st, nil)

	_, err = svc.Stories(context.Background(), domain.LanguageHindi, domain.AudienceAdults)
	assert.ErrorIs(t, err, domain.ErrServerOffline)
}

func TestStoryServesFromSnapshotOffline(t *testing.T) {
	st, err := store.Open("", nil)
	require.NoError(t, err)
	repo := &fakeStoryRepo{stories: makeStories(5)}
	svc := NewService(repo, st, nil)
	ctx := context.Background()

	_, err = svc.Stories(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)

	repo.fail = true
	story, err := svc.Story(ctx, domain.LanguageTamil, domain.AudienceKids, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StoryID(3), story.ID)

	_, err = svc.Story(ctx, domain.LanguageTamil, domain.AudienceKids, 999)
	assert.Error(t, err)
}

func TestRefreshBypassesCaches(t *testing.T) {
	st, err := store.Open("", nil)
	require.NoError(t, err)
	repo := &fakeStoryRepo{stories: makeStories(4)}
	svc := NewService(repo, st, nil)
	ctx := context.Background()

	_, err = svc.Stories(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)
	callsAfterSync := repo.calls

	repo.stories = makeStories(6)
	got, err := svc.Refresh(ctx, domain.LanguageTamil, domain.AudienceKids)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Greater(t, repo.calls, callsAfterSync)
}
