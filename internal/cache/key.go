package cache

import (
	"net/url"
	"strings"
)

// BuildKey returns the request key for u: its path, defaulting to "/",
// followed by "?query" when u carries a query. Scheme and host are
// ignored so that keys primed from relative asset URLs match requests
// for the same resource.
func BuildKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// KeyForAsset returns the request key of a configured static asset URL,
// which may be relative ("/manifest.json") or absolute.
func KeyForAsset(asset string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(asset))
	if err != nil {
		return "", err
	}
	return BuildKey(u), nil
}
