package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathaverse/katha/internal/domain"
)

func testStories() []domain.Story {
	return []domain.Story{
		{ID: 1, Title: "The Clever Crow"},
		{ID: 2, Title: "The Lion and the Mouse"},
		{ID: 3, Title: "Crown of the Forest"},
		{ID: 4, Title: "A Rainy Day in Chennai"},
	}
}

func TestSearchRanksExactishMatchesFirst(t *testing.T) {
	svc := NewService(nil)
	svc.IndexStories(testStories())

	results := svc.Search("crow")
	require.NotEmpty(t, results)
	assert.Equal(t, domain.StoryID(1), results[0].Story.ID)
	assert.NotEmpty(t, results[0].MatchedIndexes)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	svc := NewService(nil)
	svc.IndexStories(testStories())

	assert.Nil(t, svc.Search(""))
	assert.Nil(t, svc.Search("   "))
}

func TestIndexSkipsDuplicates(t *testing.T) {
	svc := NewService(nil)
	svc.IndexStories(testStories())
	svc.IndexStories(testStories())

	results := svc.Search("the")
	ids := make(map[domain.StoryID]int)
	for _, r := range results {
		ids[r.Story.ID]++
	}
	for id, count := range ids {
		assert.Equal(t, 1, count, "story %s indexed once", id)
	}
}

func TestClearEmptiesIndex(t *testing.T) {
	svc := NewService(nil)
	svc.IndexStories(testStories())
	svc.Clear()
	assert.Empty(t, svc.Search("crow"))
}
