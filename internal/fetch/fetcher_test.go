package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestNewClientUsesTimeout(t *testing.T) {
	client := NewClient(45 * time.Second)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
	if NewClient(0).Timeout != 0 {
		t.Fatalf("zero timeout should leave client unbounded")
	}
}

func TestCopyHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("X-Test-Header", "1")
	src.Add("x-test-header", "2")

	dst := http.Header{}
	CopyHeaders(dst, src)

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Keep-Alive"]; exists {
		t.Fatalf("keep-alive header should not be copied")
	}
	if got := dst.Values("X-Test-Header"); len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
}

func TestHTTPFetcherSameOriginIsBasic(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Client") != "groove" {
			t.Errorf("request header not forwarded: %v", r.Header)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>shell</html>"))
	}))
	defer upstream.Close()

	origin, _ := url.Parse(upstream.URL)
	f := NewHTTPFetcher(upstream.Client(), origin)

	req := NewRequest(http.MethodGet, upstream.URL+"/index.html")
	req.Header.Set("X-Client", "groove")
	resp, err := f.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "<html>shell</html>" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}
	if resp.Type != TypeBasic || !resp.Cacheable() {
		t.Fatalf("same-origin 200 should be basic and cacheable, got %s", resp.Type)
	}
	if resp.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("header mismatch: %v", resp.Header)
	}
}

func TestHTTPFetcherCrossOriginTypes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shared" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		_, _ = w.Write([]byte("cdn"))
	}))
	defer upstream.Close()

	origin, _ := url.Parse("https://groove.example")
	f := NewHTTPFetcher(upstream.Client(), origin)

	cases := map[string]ResponseType{
		"/shared": TypeCORS,
		"/hidden": TypeOpaque,
	}
	for path, want := range cases {
		resp, err := f.Fetch(context.Background(), NewRequest(http.MethodGet, upstream.URL+path))
		if err != nil {
			t.Fatalf("fetch %s: %v", path, err)
		}
		if resp.Type != want {
			t.Fatalf("%s: expected %s, got %s", path, want, resp.Type)
		}
		if resp.Cacheable() {
			t.Fatalf("%s: cross-origin response must not be cacheable", path)
		}
	}
}

func TestHTTPFetcherNon2xxIsNotAnError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	origin, _ := url.Parse(upstream.URL)
	resp, err := NewHTTPFetcher(upstream.Client(), origin).Fetch(context.Background(), NewRequest(http.MethodGet, upstream.URL+"/missing"))
	if err != nil {
		t.Fatalf("404 should be returned as a response, got %v", err)
	}
	if resp.OK() || resp.Cacheable() {
		t.Fatalf("404 must not be OK or cacheable")
	}
}

func TestHTTPFetcherNetworkError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := upstream.URL + "/app.js"
	upstream.Close()

	origin, _ := url.Parse(target)
	_, err := NewHTTPFetcher(NewClient(time.Second), origin).Fetch(context.Background(), NewRequest(http.MethodGet, target))
	if err == nil {
		t.Fatalf("expected network error")
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) || netErr.URL != target {
		t.Fatalf("expected *NetworkError for %s, got %v", target, err)
	}
	if !IsNetworkError(err) {
		t.Fatalf("IsNetworkError should detect wrapped error")
	}
}

func TestResponseCloneIsIndependent(t *testing.T) {
	resp := &Response{Status: 200, Header: http.Header{"X-A": {"1"}}, Body: []byte("abc"), Type: TypeBasic}
	cp := resp.Clone()
	cp.Body[0] = 'z'
	cp.Header.Set("X-A", "2")
	if string(resp.Body) != "abc" || resp.Header.Get("X-A") != "1" {
		t.Fatalf("clone must not share state with original")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	resp := &Response{Status: 200, Header: http.Header{"Content-Type": {"text/css"}}, Body: []byte("body{}"), Type: TypeBasic}
	snap := resp.Snapshot()
	back := FromSnapshot("https://groove.example/app.css", &snap)
	if back.Status != 200 || string(back.Body) != "body{}" || back.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("snapshot did not preserve response: %+v", back)
	}
	if snap.StoredAt.IsZero() {
		t.Fatalf("snapshot should record storage time")
	}
}
