package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// DefaultSessionTTL is how long a warmed-up cookie session is reused
// before the next request triggers a refresh.
const DefaultSessionTTL = 5 * time.Minute

// Session maintains one reusable cookie-bearing HTTP client for a site
// that gates its JSON API behind homepage cookies. The client is replaced
// atomically on refresh; in-flight requests keep using the old client and
// at worst see one more stale response.
type Session struct {
	homeURL string
	ttl     time.Duration
	timeout time.Duration

	mu        sync.RWMutex
	client    *http.Client
	refreshed time.Time
}

// NewSession creates a session for the given site homepage. The session is
// warmed lazily on first Client call.
func NewSession(homeURL string, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Session{
		homeURL: homeURL,
		ttl:     ttl,
		timeout: 30 * time.Second,
	}
}

// Client returns an HTTP client holding fresh site cookies, warming up a
// new one when the current session is older than the TTL. Callers must not
// mutate the returned client.
func (s *Session) Client(ctx context.Context) (*http.Client, error) {
	s.mu.RLock()
	client, refreshed := s.client, s.refreshed
	s.mu.RUnlock()

	if client != nil && time.Since(refreshed) < s.ttl {
		return client, nil
	}
	return s.refresh(ctx)
}

// ForceRefresh discards the current session and warms up a new one.
// Callers use this when a response signals cookie expiry (an
// empty-but-200 body).
func (s *Session) ForceRefresh(ctx context.Context) (*http.Client, error) {
	s.mu.Lock()
	s.client = nil
	s.mu.Unlock()
	return s.refresh(ctx)
}

// Age returns how long ago the session was last refreshed.
func (s *Session) Age() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return 0
	}
	return time.Since(s.refreshed)
}

func (s *Session) refresh(ctx context.Context) (*http.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if s.client != nil && time.Since(s.refreshed) < s.ttl {
		return s.client, nil
	}

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Timeout: s.timeout,
		Jar:     jar,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.homeURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("warm up session %s: %w", s.homeURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain body

	s.client = client
	s.refreshed = time.Now()
	return client, nil
}
