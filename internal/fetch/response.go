// Package fetch is the network collaborator of the coordinator. It turns
// requests into fully buffered responses so that one payload can be handed to
// the caller and to the cache write path at the same time.
package fetch

import (
	"net/http"
	"strings"
	"time"

	"github.com/groovecache/groovecache/internal/cache"
)

// ResponseType mirrors the delivery type of a fetched response.
type ResponseType string

const (
	// TypeBasic is a same-origin response whose content is fully visible.
	TypeBasic ResponseType = "basic"
	// TypeCORS is a cross-origin response the remote explicitly shared.
	TypeCORS ResponseType = "cors"
	// TypeOpaque is a cross-origin response that cannot be inspected.
	TypeOpaque ResponseType = "opaque"
	// TypeSynthetic marks responses produced locally as offline fallbacks.
	TypeSynthetic ResponseType = "synthetic"
)

// Request is an intercepted request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest builds a request without body or headers.
func NewRequest(method, rawURL string) *Request {
	return &Request{Method: strings.ToUpper(method), URL: rawURL, Header: http.Header{}}
}

// Key returns the cache identity of the request.
func (r *Request) Key() cache.Key {
	return cache.Key{Method: strings.ToUpper(r.Method), URL: r.URL}
}

// Response is a buffered response. It is treated as immutable once built;
// Clone hands out an independent copy.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
	URL    string
}

// Clone returns an independent copy.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// Cacheable reports whether the response may be written by the cache-first
// path: successful and same-origin.
func (r *Response) Cacheable() bool {
	return r.OK() && r.Type == TypeBasic
}

// Snapshot captures the response for the cache store.
func (r *Response) Snapshot() cache.Snapshot {
	return cache.Snapshot{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     append([]byte(nil), r.Body...),
		StoredAt: time.Now().UTC(),
	}
}

// FromSnapshot rebuilds a response from a cached snapshot.
func FromSnapshot(rawURL string, snap *cache.Snapshot) *Response {
	header := snap.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		Status: snap.Status,
		Header: header,
		Body:   append([]byte(nil), snap.Body...),
		Type:   TypeBasic,
		URL:    rawURL,
	}
}
