// Package catalog handles story browsing with layered caching: memory,
// then the local snapshot in the guest store, then the network. Offline
// reads fall back to the last synced snapshot.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kathaverse/katha/internal/domain"
	"github.com/kathaverse/katha/internal/store"
)

const pageSize = 50

// cachedResult stores fetched data with its fetch time
type cachedResult struct {
	stories   []domain.Story
	fetchedAt time.Time
}

// Service caches the story catalog per language/audience pair
type Service struct {
	repo   domain.StoryRepository
	store  *store.Store
	logger *slog.Logger

	cacheMu sync.RWMutex
	cache   map[string]cachedResult

	// Freshness window for the in-memory tier; the store snapshot has no
	// TTL and serves as the offline fallback regardless of age.
	memoryTTL time.Duration
}

// NewService creates a catalog service
func NewService(repo domain.StoryRepository, st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		store:     st,
		logger:    logger,
		cache:     make(map[string]cachedResult),
		memoryTTL: 5 * time.Minute,
	}
}

// Stories returns the catalog for a language/audience pair. Network
// failures degrade to the last local snapshot; only a cold cache with no
// snapshot surfaces the error.
func (s *Service) Stories(ctx context.Context, lang domain.Language, audience domain.Audience) ([]domain.Story, error) {
	key := snapshotKey(lang, audience)

	s.cacheMu.RLock()
	cached, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < s.memoryTTL {
		s.logger.Debug("memory cache hit", "key", key)
		return cached.stories, nil
	}

	stories, err := s.fetchAll(ctx, lang, audience)
	if err != nil {
		var snapshot []domain.Story
		if s.store.GetCatalog(key, &snapshot) {
			s.logger.Debug("serving catalog snapshot after network failure", "key", key, "count", len(snapshot))
			return snapshot, nil
		}
		if ok {
			// Stale memory beats nothing
			return cached.stories, nil
		}
		return nil, fmt.Errorf("load catalog %s: %w", key, err)
	}

	s.setCache(key, stories)
	if err := s.store.PutCatalog(key, stories); err != nil {
		s.logger.Warn("catalog snapshot write failed", "key", key, "error", err)
	}
	if err := s.store.PutCatalog(key+":ts", time.Now().Unix()); err != nil {
		s.logger.Warn("catalog timestamp write failed", "key", key, "error", err)
	}
	s.logger.Info("synced catalog", "key", key, "count", len(stories))
	return stories, nil
}

// Story returns one story with full content, preferring the synced
// snapshot so an already-browsed story opens offline.
func (s *Service) Story(ctx context.Context, lang domain.Language, audience domain.Audience, id domain.StoryID) (*domain.Story, error) {
	key := snapshotKey(lang, audience)

	s.cacheMu.RLock()
	cached, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if ok {
		for i := range cached.stories {
			if cached.stories[i].ID == id {
				return &cached.stories[i], nil
			}
		}
	}

	var snapshot []domain.Story
	if s.store.GetCatalog(key, &snapshot) {
		for i := range snapshot {
			if snapshot[i].ID == id {
				return &snapshot[i], nil
			}
		}
	}

	story, err := s.repo.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	return story, nil
}

// Refresh drops the cached tiers for a language/audience pair and
// refetches from the network.
func (s *Service) Refresh(ctx context.Context, lang domain.Language, audience domain.Audience) ([]domain.Story, error) {
	key := snapshotKey(lang, audience)
	s.cacheMu.Lock()
	delete(s.cache, key)
	s.cacheMu.Unlock()
	s.store.InvalidateCatalog(key)
	return s.Stories(ctx, lang, audience)
}

func (s *Service) fetchAll(ctx context.Context, lang domain.Language, audience domain.Audience) ([]domain.Story, error) {
	offset := 0
	var all []domain.Story
	for {
		batch, total, err := s.repo.ListStories(ctx, lang, audience, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(all) >= total || len(batch) == 0 {
			return all, nil
		}
		offset += pageSize
	}
}

func (s *Service) setCache(key string, stories []domain.Story) {
	s.cacheMu.Lock()
	s.cache[key] = cachedResult{stories: stories, fetchedAt: time.Now()}
	s.cacheMu.Unlock()
}

func snapshotKey(lang domain.Language, audience domain.Audience) string {
	return "stories:" + string(lang) + ":" + string(audience)
}
