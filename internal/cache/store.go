package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrStoreNotFound  = errors.New("cache store not found")
	ErrObjectTooLarge = errors.New("cache entry exceeds max object bytes")
	ErrRejected       = errors.New("cache entry rejected by backend")
)

// Entry is a stored response.
type Entry struct {
	Status   int         `msgpack:"status" cbor:"status" json:"status"`
	Header   http.Header `msgpack:"header" cbor:"header" json:"header"`
	Body     []byte      `msgpack:"body" cbor:"body" json:"body"`
	StoredAt time.Time   `msgpack:"stored_at" cbor:"stored_at" json:"stored_at"`
}

// Response rebuilds an *http.Response for req from the entry. Each call
// returns an independent body reader.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Store is one named cache. Keys are request keys as built by BuildKey.
//
// Every Store returned by Open is a handle that must be closed. The
// in-process backends (bigcache, ristretto) keep a deleted store readable
// through its open handles and free it when the last one is closed. Redis
// and SQLite drop the entries together with the name.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Storage holds every named cache of one backend.
//
// Open creates the named store when it does not exist yet. Names returns
// the names of all existing stores in ascending order. Delete reports
// whether a store with that name existed.
type Storage interface {
	Open(ctx context.Context, name string) (Store, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	Names(ctx context.Context) ([]string, error)
	Close() error
}

func checkSize(maxObjectBytes int64, entry Entry) error {
	if maxObjectBytes > 0 && int64(len(entry.Body)) > maxObjectBytes {
		return ErrObjectTooLarge
	}
	return nil
}
