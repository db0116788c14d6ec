package fetch

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are dropped during normalization; comparing monitors by
// normalized URL must not be defeated by campaign-tracking query noise.
// Every utm_* key is stripped regardless of suffix (see isTrackingParam);
// this set only needs the exact-match outliers.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	return strings.HasPrefix(key, "utm_") || trackingParams[key]
}

// NormalizeURL lowercases scheme and host, preserves path case, drops the
// fragment, strips known tracking query parameters, and re-encodes the
// remaining parameters sorted lexicographically.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for i, k := range keys {
			for j, v := range q[k] {
				if i > 0 || j > 0 {
					b.WriteByte('&')
				}
				b.WriteString(url.QueryEscape(k))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
		u.RawQuery = b.String()
	}

	return u.String(), nil
}

// Host returns the scheme+authority of a normalized URL, the key the
// Circuit Breaker Registry and the robots.txt cache use.
func Host(normalizedURL string) string {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return normalizedURL
	}
	return u.Scheme + "://" + u.Host
}
