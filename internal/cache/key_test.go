package cache

import (
	"net/url"
	"testing"
)

func TestBuildKeyIgnoresSchemeAndHost(t *testing.T) {
	a, _ := url.Parse("https://fiado.example/static/index.html")
	b, _ := url.Parse("/static/index.html")
	if BuildKey(a) != BuildKey(b) {
		t.Fatalf("expected equal keys, got %q and %q", BuildKey(a), BuildKey(b))
	}
}

func TestBuildKeyKeepsQuery(t *testing.T) {
	u, _ := url.Parse("/static/app.js?v=3")
	if got := BuildKey(u); got != "/static/app.js?v=3" {
		t.Fatalf("unexpected key %q", got)
	}
	root, _ := url.Parse("http://fiado.example")
	if got := BuildKey(root); got != "/" {
		t.Fatalf("expected root key /, got %q", got)
	}
}

func TestKeyForAsset(t *testing.T) {
	key, err := KeyForAsset(" /manifest.json ")
	if err != nil {
		t.Fatalf("key for asset: %v", err)
	}
	if key != "/manifest.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := KeyForAsset("http://[::1"); err == nil {
		t.Fatalf("expected parse error")
	}
}
