package offline

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Mode classifies how a request was initiated
type Mode int

const (
	// ModeResource is an ordinary subresource fetch
	ModeResource Mode = iota
	// ModeNavigate is a request for a new top-level document
	ModeNavigate
)

// Destination classifies what kind of resource a request is for
type Destination int

const (
	DestOther Destination = iota
	DestDocument
	DestScript
	DestStyle
	DestImage
)

// Request is the controller's view of one outgoing fetch
type Request struct {
	Method      string
	URL         string
	Mode        Mode
	Destination Destination
	Header      http.Header
}

// IsGET reports whether the request method is GET
func (r *Request) IsGET() bool {
	return r.Method == http.MethodGet || r.Method == ""
}

// IsHTTP reports whether the request URL scheme is http or https.
// Relative URLs (no scheme) count as http.
func (r *Request) IsHTTP() bool {
	u, err := url.Parse(r.URL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "":
		return true
	}
	return false
}

// Path returns the request URL path, or the raw URL if it does not parse
func (r *Request) Path() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	return u.Path
}

// Response is a fully buffered fetch result
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is in the successful range
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy so a cached response can be handed out without
// aliasing the stored bytes.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Response{Status: r.Status, Header: r.Header.Clone(), Body: body}
}

// Cache stores responses keyed by full request URL
type Cache interface {
	// Match returns the cached response for key, if any
	Match(key string) (*Response, bool)

	// Put stores a response under key, overwriting any previous entry
	Put(key string, resp *Response) error

	// Delete removes the entry for key
	Delete(key string) error
}

// CacheStorage manages named caches, one per cache generation
type CacheStorage interface {
	// Open returns the cache with the given name, creating it if needed
	Open(name string) (Cache, error)

	// Names lists every cache name currently present
	Names() ([]string, error)

	// Delete removes an entire named cache
	Delete(name string) error
}

// Fetcher performs the actual network fetch for a request
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// ClientRegistry lets the controller take control of already-open clients
// at activation time. Implementations may be nil-safe no-ops.
type ClientRegistry interface {
	Claim() error
}

// GuessDestination infers a Destination from a URL path extension, for
// callers that build Requests from plain HTTP traffic.
func GuessDestination(rawURL string) Destination {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DestOther
	}
	switch {
	case strings.HasSuffix(u.Path, ".js"):
		return DestScript
	case strings.HasSuffix(u.Path, ".css"):
		return DestStyle
	case strings.HasSuffix(u.Path, ".png"), strings.HasSuffix(u.Path, ".jpg"),
		strings.HasSuffix(u.Path, ".jpeg"), strings.HasSuffix(u.Path, ".webp"),
		strings.HasSuffix(u.Path, ".svg"), strings.HasSuffix(u.Path, ".ico"):
		return DestImage
	case u.Path == "/" || strings.HasSuffix(u.Path, ".html"):
		return DestDocument
	}
	return DestOther
}
