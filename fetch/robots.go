package fetch

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// robotsTTL is how long a host's robots.txt rules are cached before
// re-fetching.
const robotsTTL = 24 * time.Hour

type robotsEntry struct {
	disallow []string
	fetched  time.Time
}

// robotsCache fetches and caches /robots.txt per host, honouring Disallow
// rules for a single User-Agent family ("*", since the rotating header
// pool never claims to be a named crawler).
type robotsCache struct {
	client *http.Client
	mu     sync.Mutex
	cache  map[string]robotsEntry
}

func newRobotsCache(client *http.Client) *robotsCache {
	return &robotsCache{client: client, cache: make(map[string]robotsEntry)}
}

// disallowed reports whether path on host is blocked by robots.txt.
func (c *robotsCache) disallowed(ctx context.Context, host, path string) bool {
	entry := c.entryFor(ctx, host)
	for _, d := range entry.disallow {
		if d == "/" || (d != "" && strings.HasPrefix(path, d)) {
			return true
		}
	}
	return false
}

func (c *robotsCache) entryFor(ctx context.Context, host string) robotsEntry {
	c.mu.Lock()
	if e, ok := c.cache[host]; ok && time.Since(e.fetched) < robotsTTL {
		c.mu.Unlock()
		return e
	}
	c.mu.Unlock()

	entry := robotsEntry{fetched: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err == nil {
		if resp, err := c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				entry.disallow = parseDisallow(resp.Body)
			}
			resp.Body.Close()
		}
	}

	c.mu.Lock()
	c.cache[host] = entry
	c.mu.Unlock()
	return entry
}

// parseDisallow extracts Disallow rules that apply to User-agent: * blocks.
// This is a small line-oriented scanner, not a full robots.txt parser: it
// tracks whether the current User-agent block applies to us and collects
// Disallow paths within it.
func parseDisallow(r interface{ Read([]byte) (int, error) }) []string {
	var disallow []string
	applies := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			ua := strings.TrimSpace(line[len("User-agent:"):])
			applies = ua == "*"
		case applies && strings.HasPrefix(lower, "disallow:"):
			path := strings.TrimSpace(line[len("Disallow:"):])
			if path != "" {
				disallow = append(disallow, path)
			}
		}
	}
	return disallow
}
