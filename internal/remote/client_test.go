package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kathaverse/katha/internal/domain"
)

func TestGetStoryParsesStringIdentifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stories/9007199254740995", r.URL.Path)
		fmt.Fprint(w, `{"id":"9007199254740995","title":"The River","language":"ta","audience":"kids"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", nil)
	story, err := client.GetStory(context.Background(), 9007199254740995)
	require.NoError(t, err)
	assert.Equal(t, domain.StoryID(9007199254740995), story.ID)
	assert.Equal(t, "The River", story.Title)
}

func TestListStoriesSendsFilterQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "hi", q.Get("language"))
		assert.Equal(t, "adults", q.Get("audience"))
		assert.Equal(t, "50", q.Get("limit"))
		fmt.Fprint(w, `{"stories":[{"id":"1"},{"id":"2"}],"total":2}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", nil)
	stories, total, err := client.ListStories(context.Background(), domain.LanguageHindi, domain.AudienceAdults, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, stories, 2)
	assert.Equal(t, domain.StoryID(2), stories[1].ID)
}

func TestGetRetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id":"7","title":"Retry"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", nil)
	story, err := client.GetStory(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Retry", story.Title)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "stale-token", nil)
	_, err := client.GetUser(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
	assert.Equal(t, int32(1), hits.Load(), "401 must not burn retries")
}

func TestUnreachableServerMapsToOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, "", nil)
	_, err := client.GetFavorites(context.Background())
	assert.ErrorIs(t, err, domain.ErrServerOffline)
}

func TestBearerTokenSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-123", nil)
	_, err := client.GetFavorites(context.Background())
	require.NoError(t, err)
}
