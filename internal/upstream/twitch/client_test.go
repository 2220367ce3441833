package twitch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

// fakeHelix bundles a token endpoint and a streams/users API.
type fakeHelix struct {
	tokenCalls atomic.Int64
	apiCalls   atomic.Int64

	streamsJSON string
	usersJSON   string
	apiStatus   int

	token *httptest.Server
	api   *httptest.Server
}

func newFakeHelix(t *testing.T) *fakeHelix {
	t.Helper()
	f := &fakeHelix{streamsJSON: `{"data":[]}`, usersJSON: `{"data":[]}`}
	f.token = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		fmt.Fprint(w, `{"access_token":"tok1","expires_in":3600,"token_type":"bearer"}`)
	}))
	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if f.apiStatus != 0 {
			w.WriteHeader(f.apiStatus)
			fmt.Fprint(w, `{"error":"Unauthorized","message":"invalid token"}`)
			return
		}
		switch r.URL.Path {
		case "/streams":
			fmt.Fprint(w, f.streamsJSON)
		case "/users":
			fmt.Fprint(w, f.usersJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(func() {
		f.token.Close()
		f.api.Close()
	})
	return f
}

func (f *fakeHelix) client() *Client {
	return NewClient(Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		APIBase:      f.api.URL,
		TokenBase:    f.token.URL,
	}, logx.Nop())
}

func TestAccessTokenCached(t *testing.T) {
	f := newFakeHelix(t)
	c := f.client()

	for i := 0; i < 3; i++ {
		if _, err := c.StreamStatus(context.Background(), "somestreamer"); err != nil {
			t.Fatalf("StreamStatus: %v", err)
		}
	}
	if n := f.tokenCalls.Load(); n != 1 {
		t.Fatalf("expected 1 token request, got %d", n)
	}
}

func TestAccessTokenRefreshAfterExpiry(t *testing.T) {
	f := newFakeHelix(t)
	c := f.client()

	if _, err := c.StreamStatus(context.Background(), "somestreamer"); err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	// Force the cached token past its 90% lifetime.
	c.mu.Lock()
	c.expiresAt = time.Now().Add(-time.Second)
	c.mu.Unlock()

	if _, err := c.StreamStatus(context.Background(), "somestreamer"); err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	if n := f.tokenCalls.Load(); n != 2 {
		t.Fatalf("expected refresh, got %d token requests", n)
	}
}

func TestUnauthorizedClearsCachedToken(t *testing.T) {
	f := newFakeHelix(t)
	c := f.client()

	if _, err := c.StreamStatus(context.Background(), "somestreamer"); err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	f.apiStatus = http.StatusUnauthorized
	if _, err := c.StreamStatus(context.Background(), "somestreamer"); err == nil {
		t.Fatalf("expected 401 error")
	}
	f.apiStatus = 0
	if _, err := c.StreamStatus(context.Background(), "somestreamer"); err != nil {
		t.Fatalf("StreamStatus after reauth: %v", err)
	}
	if n := f.tokenCalls.Load(); n != 2 {
		t.Fatalf("expected re-auth after 401, got %d token requests", n)
	}
}

func TestStreamStatusOffline(t *testing.T) {
	f := newFakeHelix(t)
	c := f.client()

	st, err := c.StreamStatus(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	if st != nil {
		t.Fatalf("expected nil for offline streamer, got %+v", st)
	}
}

func TestStreamStatusIgnoresNonLive(t *testing.T) {
	f := newFakeHelix(t)
	f.streamsJSON = `{"data":[{"id":"1","type":"rerun","title":"old","started_at":"2026-08-01T10:00:00Z"}]}`
	c := f.client()

	st, err := c.StreamStatus(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("StreamStatus: %v", err)
	}
	if st != nil {
		t.Fatalf("rerun must not count as live, got %+v", st)
	}
}

func TestSourceFetchLatestLive(t *testing.T) {
	f := newFakeHelix(t)
	f.streamsJSON = `{"data":[{"id":"s1","user_login":"somestreamer","user_name":"SomeStreamer","type":"live","title":"playing","started_at":"2026-08-01T10:00:00Z"}]}`
	src := NewSource(f.client(), logx.Nop())

	it, err := src.FetchLatest(context.Background(), &watch.Target{ID: "t1", Identity: "somestreamer"})
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if it == nil {
		t.Fatalf("expected live item")
	}
	if it.Type != watch.TypeStream || it.Streamer != "SomeStreamer" {
		t.Fatalf("unexpected item: %+v", it)
	}
	if it.URL != "https://twitch.tv/somestreamer" {
		t.Fatalf("unexpected url: %s", it.URL)
	}
	if got := it.Marker(); got != "2026-08-01T10:00:00Z" {
		t.Fatalf("marker should be the start timestamp, got %q", got)
	}
}

func TestSourceStreamerFallback(t *testing.T) {
	f := newFakeHelix(t)
	f.streamsJSON = `{"data":[{"id":"s1","user_login":"somestreamer","type":"live","title":"playing","started_at":"2026-08-01T10:00:00Z"}]}`
	f.usersJSON = `{"data":[{"id":"9","login":"somestreamer","display_name":"ProfileName"}]}`
	src := NewSource(f.client(), logx.Nop())

	it, err := src.FetchLatest(context.Background(), &watch.Target{ID: "t1", Identity: "somestreamer"})
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if it.Streamer != "ProfileName" {
		t.Fatalf("expected profile display name fallback, got %q", it.Streamer)
	}
}
