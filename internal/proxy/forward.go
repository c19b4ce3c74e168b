package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fiado_cache/internal/obs"
)

const (
	DefaultDialTimeout           = 2 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
)

type ForwarderConfig struct {
	Origin                string
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	Metrics               *obs.Metrics
	// Transport overrides the pooled transport built from the timeouts.
	Transport http.RoundTripper
}

// Forwarder is the network: it sends requests to the origin over a pooled
// transport and classifies transport failures.
type Forwarder struct {
	origin    *url.URL
	transport http.RoundTripper
	metrics   *obs.Metrics
}

func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	origin, err := url.Parse(strings.TrimSpace(cfg.Origin))
	if err != nil {
		return nil, err
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, errors.New("origin must be an http or https url")
	}
	if origin.Host == "" {
		return nil, errors.New("origin host is required")
	}

	transport := cfg.Transport
	if transport == nil {
		dialTimeout := cfg.DialTimeout
		if dialTimeout <= 0 {
			dialTimeout = DefaultDialTimeout
		}
		headerTimeout := cfg.ResponseHeaderTimeout
		if headerTimeout <= 0 {
			headerTimeout = DefaultResponseHeaderTimeout
		}
		dialer := &net.Dialer{Timeout: dialTimeout}
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: headerTimeout,
			IdleConnTimeout:       30 * time.Second,
			MaxIdleConns:          256,
			MaxIdleConnsPerHost:   64,
			ForceAttemptHTTP2:     true,
		}
	}
	return &Forwarder{origin: origin, transport: transport, metrics: cfg.Metrics}, nil
}

func (f *Forwarder) Origin() *url.URL {
	u := *f.origin
	return &u
}

func (f *Forwarder) CloseIdleConnections() {
	if closer, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// Fetch forwards req to the origin. req may carry a relative URL (static
// assets during install) or an inbound server request; either way only its
// path and query are used to build the target.
func (f *Forwarder) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := f.target(req.URL)

	body := req.Body
	if body == nil || req.ContentLength == 0 {
		body = http.NoBody
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	outbound, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	outbound.ContentLength = req.ContentLength
	if req.Header != nil {
		outbound.Header = req.Header.Clone()
	}
	setForwardedHeaders(outbound, req)
	obs.InjectTraceHeaders(outbound, ctx)

	roundtripStart := time.Now()
	resp, err := f.transport.RoundTrip(outbound)
	f.metrics.ObserveUpstreamRoundTrip(time.Since(roundtripStart))
	if err != nil {
		category := ClassifyError(err)
		f.metrics.RecordUpstreamError(category)
		return nil, &UpstreamError{Category: category, Err: err}
	}
	return resp, nil
}

func (f *Forwarder) target(u *url.URL) *url.URL {
	target := *f.origin
	target.User = nil
	target.Fragment = ""
	path := "/"
	rawPath := ""
	query := ""
	if u != nil {
		path = u.Path
		rawPath = u.RawPath
		query = u.RawQuery
	}
	target.Path = joinPath(f.origin.Path, path)
	if rawPath != "" {
		target.RawPath = joinPath(f.origin.EscapedPath(), rawPath)
	} else {
		target.RawPath = ""
	}
	target.RawQuery = query
	return &target
}

func joinPath(base, path string) string {
	if path == "" {
		path = "/"
	}
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func setForwardedHeaders(outbound *http.Request, inbound *http.Request) {
	clientIP := inbound.RemoteAddr
	if host, _, err := net.SplitHostPort(inbound.RemoteAddr); err == nil {
		clientIP = host
	}

	if clientIP != "" {
		prior := outbound.Header.Get("X-Forwarded-For")
		if prior != "" {
			clientIP = prior + ", " + clientIP
		}
		outbound.Header.Set("X-Forwarded-For", clientIP)
	}

	proto := "http"
	if inbound.TLS != nil {
		proto = "https"
	}
	outbound.Header.Set("X-Forwarded-Proto", proto)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
