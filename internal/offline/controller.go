package offline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// State names one phase of the controller lifecycle
type State int

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MessageSkipWaiting is the directed control message that tells an
// installed-but-waiting controller to activate immediately.
const MessageSkipWaiting = "SKIP_WAITING"

// Message is a directed control message from a client
type Message struct {
	Type string
}

// Config wires a Controller to its collaborators
type Config struct {
	// Generation names the cache for the current deploy. Bumping it is the
	// mechanism that invalidates all previously cached assets on the next
	// activation.
	Generation string

	// Shell is the fixed list of app-shell asset URLs pre-populated at
	// install time.
	Shell []string

	// RootDocument is the URL of the cached root document used as the
	// navigation fallback. It should also appear in Shell.
	RootDocument string

	// StaticPrefix marks the path prefix under which all hashed bundle
	// assets are served; those requests get stale-while-revalidate.
	StaticPrefix string

	Storage CacheStorage
	Fetcher Fetcher
	Clients ClientRegistry // optional
	Logger  *slog.Logger
}

// Controller applies per-request-class cache strategies at the fetch
// boundary: network-first for navigations, stale-while-revalidate for
// static assets, network-first-with-cache-fallback for everything else.
//
// Every cache operation is best-effort. A failed cache read or write
// degrades to the network (or to the underlying failure), never to a
// panic past HandleFetch.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	waiting bool // installed but not yet told to activate
	cache   Cache

	revalidations sync.WaitGroup
}

// NewController creates a controller in the Installing state
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: logger, state: StateInstalling}
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the active cache generation name
func (c *Controller) Generation() string {
	return c.cfg.Generation
}

// Install opens the generation's cache and pre-populates the app shell.
// A failure to fetch or store any individual shell asset is logged and
// skipped; install only fails if the cache itself cannot be opened.
// On success the controller is Installed and ready to activate without a
// waiting phase.
func (c *Controller) Install(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInstalling {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("install from state %s", state)
	}
	c.mu.Unlock()

	cache, err := c.cfg.Storage.Open(c.cfg.Generation)
	if err != nil {
		return fmt.Errorf("open cache %q: %w", c.cfg.Generation, err)
	}

	for _, asset := range c.cfg.Shell {
		resp, err := c.cfg.Fetcher.Fetch(ctx, &Request{Method: "GET", URL: asset})
		if err != nil {
			c.logger.Warn("shell asset fetch failed", "url", asset, "error", err)
			continue
		}
		if resp.Status != 200 {
			c.logger.Warn("shell asset not cached", "url", asset, "status", resp.Status)
			continue
		}
		if err := cache.Put(asset, resp); err != nil {
			c.logger.Warn("shell asset cache write failed", "url", asset, "error", err)
		}
	}

	c.mu.Lock()
	c.cache = cache
	c.state = StateInstalled
	c.waiting = false // skip the waiting phase
	c.mu.Unlock()

	c.logger.Info("installed", "generation", c.cfg.Generation, "shellAssets", len(c.cfg.Shell))
	return nil
}

// Activate purges every cache generation other than the current one, claims
// all open clients, and transitions to Active.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInstalled {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("activate from state %s", state)
	}
	c.state = StateActivating
	c.mu.Unlock()

	names, err := c.cfg.Storage.Names()
	if err != nil {
		c.logger.Warn("cache enumeration failed", "error", err)
	}
	for _, name := range names {
		if name == c.cfg.Generation {
			continue
		}
		if err := c.cfg.Storage.Delete(name); err != nil {
			c.logger.Warn("stale cache purge failed", "generation", name, "error", err)
			continue
		}
		c.logger.Info("purged stale cache", "generation", name)
	}

	if c.cfg.Clients != nil {
		if err := c.cfg.Clients.Claim(); err != nil {
			c.logger.Warn("client claim failed", "error", err)
		}
	}

	c.mu.Lock()
	c.state = StateActive
	c.mu.Unlock()

	c.logger.Info("activated", "generation", c.cfg.Generation)
	return nil
}

// HandleMessage processes a directed control message. A skip-waiting
// message activates an Installed controller immediately; anything else is
// ignored.
func (c *Controller) HandleMessage(ctx context.Context, msg Message) {
	if msg.Type != MessageSkipWaiting {
		return
	}
	c.mu.Lock()
	installed := c.state == StateInstalled
	c.mu.Unlock()
	if !installed {
		return
	}
	if err := c.Activate(ctx); err != nil {
		c.logger.Warn("skip-waiting activation failed", "error", err)
	}
}

// HandleFetch routes one request through the strategy table. First match
// wins:
//
//  1. non-GET: pass through untouched
//  2. non-http(s) scheme: pass through untouched
//  3. navigation: network-first, never cached, cached root document as
//     offline fallback
//  4. static-assets prefix: stale-while-revalidate
//  5. everything else: network-first with cache fallback, opportunistically
//     caching successful script/stylesheet responses
func (c *Controller) HandleFetch(ctx context.Context, req *Request) (*Response, error) {
	if !req.IsGET() || !req.IsHTTP() {
		return c.cfg.Fetcher.Fetch(ctx, req)
	}

	switch {
	case req.Mode == ModeNavigate:
		return c.handleNavigation(ctx, req)
	case strings.HasPrefix(req.Path(), c.cfg.StaticPrefix) && c.cfg.StaticPrefix != "":
		return c.handleStatic(ctx, req)
	default:
		return c.handleDefault(ctx, req)
	}
}

// handleNavigation is network-first and deliberately never caches the
// response: caching per-route documents would let a stale route shell
// outlive a deploy.
func (c *Controller) handleNavigation(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.cfg.Fetcher.Fetch(ctx, req)
	if err == nil && resp.OK() {
		return resp, nil
	}

	if cached, ok := c.match(c.cfg.RootDocument); ok {
		c.logger.Debug("navigation served from cached root", "url", req.URL)
		return cached, nil
	}

	// No fallback: propagate the original network result or failure
	return resp, err
}

// handleStatic is stale-while-revalidate: a cache hit returns immediately
// and kicks off a background refresh whose result is not awaited; a miss
// waits on the network.
func (c *Controller) handleStatic(ctx context.Context, req *Request) (*Response, error) {
	if cached, ok := c.match(req.URL); ok {
		c.revalidations.Add(1)
		go func() {
			defer c.revalidations.Done()
			resp, err := c.cfg.Fetcher.Fetch(context.WithoutCancel(ctx), req)
			if err != nil {
				c.logger.Debug("background revalidation failed", "url", req.URL, "error", err)
				return
			}
			if resp.Status == 200 {
				c.put(req.URL, resp)
			}
		}()
		return cached, nil
	}

	resp, err := c.cfg.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status == 200 {
		c.put(req.URL, resp.Clone())
	}
	return resp, nil
}

// handleDefault is network-first with cache fallback. Scripts and
// stylesheets that load successfully are written into the cache as a side
// effect so a later offline load can still find them.
func (c *Controller) handleDefault(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.cfg.Fetcher.Fetch(ctx, req)
	if err == nil && resp.OK() {
		if resp.Status == 200 && (req.Destination == DestScript || req.Destination == DestStyle) {
			c.put(req.URL, resp.Clone())
		}
		return resp, nil
	}

	if cached, ok := c.match(req.URL); ok {
		c.logger.Debug("served from cache after network failure", "url", req.URL)
		return cached, nil
	}
	return resp, err
}

// Flush waits for in-flight background revalidations to settle. Called on
// shutdown and by tests.
func (c *Controller) Flush() {
	c.revalidations.Wait()
}

func (c *Controller) match(key string) (*Response, bool) {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache == nil {
		return nil, false
	}
	resp, ok := cache.Match(key)
	if !ok {
		return nil, false
	}
	return resp.Clone(), true
}

func (c *Controller) put(key string, resp *Response) {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache == nil {
		return
	}
	if err := cache.Put(key, resp); err != nil {
		c.logger.Warn("cache write failed", "url", key, "error", err)
	}
}
