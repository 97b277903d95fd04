// Package urlnorm canonicalizes search-result URLs into stable dedup keys.
package urlnorm

import (
	"net/url"
	"strings"
)

// trackingPrefixes are matched case-insensitively against query keys.
var trackingPrefixes = []string{"utm_", "gclid", "fbclid", "mc_cid", "mc_eid"}

var defaultPorts = map[string]string{
	"http":  ":80",
	"ws":    ":80",
	"https": ":443",
	"wss":   ":443",
}

// Normalize standardizes a URL so that trivially different links to the same
// page collapse to one key. It lowercases the scheme and host, removes default
// ports, drops the fragment and strips tracking query parameters while keeping
// the order and blank values of the rest. The path keeps its original case.
//
// Normalize never fails: input that does not parse as an absolute URL is
// returned unchanged. Normalize(Normalize(u)) == Normalize(u).
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if port, ok := defaultPorts[u.Scheme]; ok {
		u.Host = strings.TrimSuffix(u.Host, port)
	}

	u.Fragment = ""
	u.RawFragment = ""

	u.RawQuery = filterQuery(u.RawQuery)
	u.ForceQuery = false

	return u.String()
}

// filterQuery drops tracking parameters from a raw query string and re-encodes
// the survivors in their original order. Pieces without '=' are kept with an
// empty value; empty pieces are dropped.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	kept := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for _, piece := range strings.Split(rawQuery, "&") {
		if piece == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(piece, "=")
		key, kerr := url.QueryUnescape(rawKey)
		value, verr := url.QueryUnescape(rawValue)
		if kerr != nil || verr != nil {
			// Undecodable pieces pass through verbatim so a second pass is a no-op.
			if !isTracking(rawKey) {
				kept = append(kept, piece)
			}
			continue
		}
		if isTracking(key) {
			continue
		}
		kept = append(kept, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}
	return strings.Join(kept, "&")
}

func isTracking(key string) bool {
	lower := strings.ToLower(key)
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
