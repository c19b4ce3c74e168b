package worker

import (
	"net/http"
	"strings"
)

// ShouldBypass reports whether rawURL contains any of the fragments.
// Matching is a plain substring test on the full URL string.
func ShouldBypass(rawURL string, fragments []string) bool {
	for _, fragment := range fragments {
		if fragment != "" && strings.Contains(rawURL, fragment) {
			return true
		}
	}
	return false
}

func interceptable(req *http.Request, fragments []string) bool {
	if req.Method != "" && req.Method != http.MethodGet {
		return false
	}
	return !ShouldBypass(req.URL.String(), fragments)
}
