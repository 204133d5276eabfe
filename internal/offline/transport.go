package offline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
)

// HTTPFetcher adapts an http.RoundTripper to the Fetcher interface,
// buffering response bodies so they can be cached and replayed.
type HTTPFetcher struct {
	transport http.RoundTripper
}

// NewHTTPFetcher wraps transport (nil selects http.DefaultTransport)
func NewHTTPFetcher(transport http.RoundTripper) *HTTPFetcher {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HTTPFetcher{transport: transport}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := f.transport.RoundTrip(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

// Transport routes GET traffic of an http.Client through a Controller so
// ordinary HTTP calls get the offline cache strategies transparently.
// Non-GET requests bypass the controller entirely.
type Transport struct {
	ctrl *Controller
	next http.RoundTripper
}

// NewTransport builds a RoundTripper in front of next (nil selects
// http.DefaultTransport).
func NewTransport(ctrl *Controller, next http.RoundTripper) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{ctrl: ctrl, next: next}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	creq := &Request{
		Method:      req.Method,
		URL:         req.URL.String(),
		Mode:        modeFor(req),
		Destination: GuessDestination(req.URL.String()),
		Header:      req.Header,
	}

	resp, err := t.ctrl.HandleFetch(req.Context(), creq)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: resp.Status,
		Status:     http.StatusText(resp.Status),
		Header:     resp.Header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(resp.Body)),
		Request:    req,
	}, nil
}

func modeFor(req *http.Request) Mode {
	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		return ModeNavigate
	}
	return ModeResource
}
