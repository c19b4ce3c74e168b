package worker

import (
	"net/http"
	"time"
)

// Kind names a lifecycle event variant.
type Kind string

const (
	KindInstall  Kind = "install"
	KindActivate Kind = "activate"
	KindFetch    Kind = "fetch"
)

// Event is one of InstallEvent, ActivateEvent or FetchEvent.
type Event interface {
	Kind() Kind
}

// InstallEvent installs a new generation described by Config.
type InstallEvent struct {
	Config Config
}

// ActivateEvent activates the installed generation and claims all
// subsequent fetches for it.
type ActivateEvent struct{}

// FetchEvent asks the worker to answer Request.
type FetchEvent struct {
	Request *http.Request
}

func (InstallEvent) Kind() Kind  { return KindInstall }
func (ActivateEvent) Kind() Kind { return KindActivate }
func (FetchEvent) Kind() Kind    { return KindFetch }

// Result is the typed outcome of an event; its concrete type matches the
// event variant.
type Result interface {
	Kind() Kind
}

type AssetFailure struct {
	Asset string
	Err   error
}

type InstallResult struct {
	CacheName string
	Phase     Phase
	Primed    []string
	Failed    []AssetFailure
	Duration  time.Duration
}

type StoreFailure struct {
	Name string
	Err  error
}

type ActivateResult struct {
	CacheName string
	Previous  string
	Deleted   []string
	Failed    []StoreFailure
	Duration  time.Duration
}

// Source reports where a fetch response came from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceFallback Source = "fallback"
	SourceBypass   Source = "bypass"
)

type FetchResult struct {
	Response  *http.Response
	Source    Source
	CacheName string
}

func (InstallResult) Kind() Kind  { return KindInstall }
func (ActivateResult) Kind() Kind { return KindActivate }
func (FetchResult) Kind() Kind    { return KindFetch }
