// Package search provides local fuzzy search over the synced story
// catalog, so lookups keep working offline.
package search

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	rank "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/kathaverse/katha/internal/domain"
)

// Result is one search hit with highlight metadata
type Result struct {
	Story          domain.Story
	Score          int   // Lower is better
	MatchedIndexes []int // Character positions that matched (for highlighting)
}

// storyIndex implements fuzzy.Source over pre-lowered titles for
// zero-allocation matching.
type storyIndex struct {
	stories     []domain.Story
	lowerTitles []string
}

func (idx *storyIndex) String(i int) string { return idx.lowerTitles[i] }
func (idx *storyIndex) Len() int            { return len(idx.stories) }

// Service indexes story titles and answers fuzzy queries
type Service struct {
	logger *slog.Logger

	mu      sync.RWMutex
	index   *storyIndex
	indexed map[domain.StoryID]struct{}
}

// NewService creates an empty search service
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:  logger,
		index:   &storyIndex{},
		indexed: make(map[domain.StoryID]struct{}),
	}
}

// IndexStories adds stories to the local index, skipping already-indexed
// IDs.
func (s *Service) IndexStories(stories []domain.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, story := range stories {
		if _, ok := s.indexed[story.ID]; ok {
			continue
		}
		s.indexed[story.ID] = struct{}{}
		s.index.stories = append(s.index.stories, story)
		s.index.lowerTitles = append(s.index.lowerTitles, strings.ToLower(story.Title))
		added++
	}
	if added > 0 {
		s.logger.Debug("indexed stories", "added", added, "total", len(s.index.stories))
	}
}

// Clear drops the index, e.g. after a language switch
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = &storyIndex{}
	s.indexed = make(map[domain.StoryID]struct{})
}

// Search returns stories ranked by fuzzy match quality
func (s *Service) Search(query string) []Result {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return nil
	}

	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()

	matches := fuzzy.FindFrom(query, idx)
	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		story := idx.stories[match.Index]
		// sahilm scores are higher-is-better; flip the sign so lower is
		// better throughout, then use the Levenshtein-ish rank from
		// fuzzysearch as a tiebreaker for near-equal matches.
		score := -match.Score
		if r := rank.RankMatchNormalizedFold(query, story.Title); r >= 0 {
			score += r
		}
		results = append(results, Result{
			Story:          story,
			Score:          score,
			MatchedIndexes: match.MatchedIndexes,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score < results[j].Score
	})
	return results
}
