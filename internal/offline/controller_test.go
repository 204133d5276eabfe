package offline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCache is an in-memory Cache
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*Response
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*Response)}
}

func (c *fakeCache) Match(key string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[key]
	return resp, ok
}

func (c *fakeCache) Put(key string, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = resp
	return nil
}

func (c *fakeCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// fakeStorage is an in-memory CacheStorage
type fakeStorage struct {
	mu     sync.Mutex
	caches map[string]*fakeCache
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{caches: make(map[string]*fakeCache)}
}

func (s *fakeStorage) Open(name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := newFakeCache()
	s.caches[name] = c
	return c, nil
}

func (s *fakeStorage) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.caches {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeStorage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, name)
	return nil
}

// fakeFetcher serves scripted responses per URL
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*Response
	errs      map[string]error
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*Response),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) serve(url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[url] = &Response{Status: status, Header: http.Header{}, Body: []byte(body)}
	delete(f.errs, url)
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
	delete(f.responses, url)
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Fetch(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp.Clone(), nil
	}
	return nil, errors.New("no route for " + req.URL)
}

type fakeClients struct {
	claimed bool
}

func (c *fakeClients) Claim() error {
	c.claimed = true
	return nil
}

func newTestController(t *testing.T, storage *fakeStorage, fetcher *fakeFetcher) *Controller {
	t.Helper()
	return NewController(Config{
		Generation:   "katha-v3",
		Shell:        []string{"/", "/icons/icon-192.png", "/icons/icon-512.png", "/covers/default.png"},
		RootDocument: "/",
		StaticPrefix: "/assets/",
		Storage:      storage,
		Fetcher:      fetcher,
	})
}

func serveShell(fetcher *fakeFetcher) {
	fetcher.serve("/", 200, "<html>shell</html>")
	fetcher.serve("/icons/icon-192.png", 200, "icon192")
	fetcher.serve("/icons/icon-512.png", 200, "icon512")
	fetcher.serve("/covers/default.png", 200, "cover")
}

func installAndActivate(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Install(ctx))
	require.NoError(t, c.Activate(ctx))
	require.Equal(t, StateActive, c.State())
}

func TestActivatePurgesStaleGenerations(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	// Leftovers from two prior deploys plus an unrelated cache
	for _, stale := range []string{"katha-v1", "katha-v2", "other-app"} {
		_, err := storage.Open(stale)
		require.NoError(t, err)
	}

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	names, err := storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"katha-v3"}, names)
}

func TestInstallSurvivesIndividualAssetFailures(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.fail("/icons/icon-512.png", errors.New("404 at build time"))

	c := newTestController(t, storage, fetcher)
	require.NoError(t, c.Install(context.Background()))
	assert.Equal(t, StateInstalled, c.State())

	cache := storage.caches["katha-v3"]
	require.NotNil(t, cache)
	_, ok := cache.Match("/")
	assert.True(t, ok)
	_, ok = cache.Match("/icons/icon-192.png")
	assert.True(t, ok)
	_, ok = cache.Match("/covers/default.png")
	assert.True(t, ok)
	_, ok = cache.Match("/icons/icon-512.png")
	assert.False(t, ok, "failed asset must not be cached")
}

func TestNavigationIsNetworkFirstAndNeverCached(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	fetcher.serve("/stories/42", 200, "<html>story 42</html>")

	resp, err := c.HandleFetch(context.Background(), &Request{
		Method: "GET", URL: "/stories/42", Mode: ModeNavigate,
	})
	require.NoError(t, err)
	assert.Equal(t, "<html>story 42</html>", string(resp.Body))

	// The navigation response must not have been written into the cache
	_, ok := storage.caches["katha-v3"].Match("/stories/42")
	assert.False(t, ok)
}

func TestNavigationFallsBackToCachedRoot(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	fetcher.fail("/stories/42", errors.New("offline"))

	resp, err := c.HandleFetch(context.Background(), &Request{
		Method: "GET", URL: "/stories/42", Mode: ModeNavigate,
	})
	require.NoError(t, err)
	assert.Equal(t, "<html>shell</html>", string(resp.Body))
}

func TestNavigationPropagatesFailureWithoutCachedRoot(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)
	fetcher.fail("/", errors.New("root missing at install"))

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	offline := errors.New("offline")
	fetcher.fail("/stories/42", offline)

	_, err := c.HandleFetch(context.Background(), &Request{
		Method: "GET", URL: "/stories/42", Mode: ModeNavigate,
	})
	assert.ErrorIs(t, err, offline)
}

func TestStaleWhileRevalidate(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	ctx := context.Background()
	url := "/assets/bundle.abc123.js"

	// First request misses the cache and waits on the network
	fetcher.serve(url, 200, "v1")
	resp, err := c.HandleFetch(ctx, &Request{Method: "GET", URL: url})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(resp.Body))

	// Second request returns the stale bytes immediately, then refreshes
	fetcher.serve(url, 200, "v2")
	resp, err = c.HandleFetch(ctx, &Request{Method: "GET", URL: url})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(resp.Body), "stale response served first")

	c.Flush()
	cached, ok := storage.caches["katha-v3"].Match(url)
	require.True(t, ok)
	assert.Equal(t, "v2", string(cached.Body), "background refresh updated the cache")
}

func TestStaleWhileRevalidateKeepsCacheOnFailedRefresh(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	ctx := context.Background()
	url := "/assets/styles.def456.css"

	fetcher.serve(url, 200, "v1")
	_, err := c.HandleFetch(ctx, &Request{Method: "GET", URL: url})
	require.NoError(t, err)

	// A 500 during revalidation must not overwrite the good entry
	fetcher.serve(url, 500, "boom")
	resp, err := c.HandleFetch(ctx, &Request{Method: "GET", URL: url})
	require.NoError(t, err)
	assert.Equal(t, "v1", string(resp.Body))

	c.Flush()
	cached, ok := storage.caches["katha-v3"].Match(url)
	require.True(t, ok)
	assert.Equal(t, "v1", string(cached.Body))
}

func TestDefaultRouteCachesScriptsOpportunistically(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	ctx := context.Background()
	fetcher.serve("/vendor/reader.js", 200, "script bytes")

	resp, err := c.HandleFetch(ctx, &Request{
		Method: "GET", URL: "/vendor/reader.js", Destination: DestScript,
	})
	require.NoError(t, err)
	assert.Equal(t, "script bytes", string(resp.Body))

	// Now offline: the opportunistically cached copy still serves
	fetcher.fail("/vendor/reader.js", errors.New("offline"))
	resp, err = c.HandleFetch(ctx, &Request{
		Method: "GET", URL: "/vendor/reader.js", Destination: DestScript,
	})
	require.NoError(t, err)
	assert.Equal(t, "script bytes", string(resp.Body))
}

func TestDefaultRouteDoesNotCacheOtherDestinations(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	fetcher.serve("/api/stories", 200, `[]`)
	_, err := c.HandleFetch(context.Background(), &Request{Method: "GET", URL: "/api/stories"})
	require.NoError(t, err)

	_, ok := storage.caches["katha-v3"].Match("/api/stories")
	assert.False(t, ok)
}

func TestNonGETAndNonHTTPPassThrough(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	installAndActivate(t, c)

	ctx := context.Background()
	fetcher.serve("/api/favorites", 200, "ok")
	resp, err := c.HandleFetch(ctx, &Request{Method: "POST", URL: "/api/favorites"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	_, ok := storage.caches["katha-v3"].Match("/api/favorites")
	assert.False(t, ok)

	fetcher.serve("chrome-extension://abc/page.js", 200, "ext")
	resp, err = c.HandleFetch(ctx, &Request{Method: "GET", URL: "chrome-extension://abc/page.js", Destination: DestScript})
	require.NoError(t, err)
	assert.Equal(t, "ext", string(resp.Body))
	_, ok = storage.caches["katha-v3"].Match("chrome-extension://abc/page.js")
	assert.False(t, ok)
}

func TestSkipWaitingMessageActivates(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	// A stale generation that activation should purge
	_, err := storage.Open("katha-v2")
	require.NoError(t, err)

	c := newTestController(t, storage, fetcher)
	ctx := context.Background()
	require.NoError(t, c.Install(ctx))
	require.Equal(t, StateInstalled, c.State())

	c.HandleMessage(ctx, Message{Type: "noise"})
	assert.Equal(t, StateInstalled, c.State())

	c.HandleMessage(ctx, Message{Type: MessageSkipWaiting})
	assert.Equal(t, StateActive, c.State())

	names, err := storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"katha-v3"}, names)
}

func TestActivateClaimsClients(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	clients := &fakeClients{}
	c := NewController(Config{
		Generation:   "katha-v3",
		Shell:        []string{"/"},
		RootDocument: "/",
		StaticPrefix: "/assets/",
		Storage:      storage,
		Fetcher:      fetcher,
		Clients:      clients,
	})
	installAndActivate(t, c)
	assert.True(t, clients.claimed)
}

func TestLifecycleTransitionsAreOrdered(t *testing.T) {
	storage := newFakeStorage()
	fetcher := newFakeFetcher()
	serveShell(fetcher)

	c := newTestController(t, storage, fetcher)
	ctx := context.Background()

	assert.Error(t, c.Activate(ctx), "activate before install")
	require.NoError(t, c.Install(ctx))
	assert.Error(t, c.Install(ctx), "double install")
	require.NoError(t, c.Activate(ctx))
	assert.Error(t, c.Activate(ctx), "double activate")
}
