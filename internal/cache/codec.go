package cache

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes entries for byte-oriented backends.
type Codec interface {
	Name() string
	Marshal(Entry) ([]byte, error)
	Unmarshal([]byte) (Entry, error)
}

// Msgpack is the default codec. The zero value is ready to use.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Marshal(entry Entry) ([]byte, error) {
	return msgpack.Marshal(entry)
}

func (Msgpack) Unmarshal(data []byte) (Entry, error) {
	var entry Entry
	err := msgpack.Unmarshal(data, &entry)
	return entry, err
}

// CBOR encodes entries with RFC 3339 timestamps. Construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (CBOR, error) {
	opts := cbor.PreferredUnsortedEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dec, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: enc, dec: dec}, nil
}

func (CBOR) Name() string { return "cbor" }

func (c CBOR) Marshal(entry Entry) ([]byte, error) {
	return c.enc.Marshal(entry)
}

func (c CBOR) Unmarshal(data []byte) (Entry, error) {
	var entry Entry
	err := c.dec.Unmarshal(data, &entry)
	return entry, err
}

// NewCodec resolves a codec by name; the empty name selects msgpack.
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR()
	default:
		return nil, fmt.Errorf("unknown cache codec %q", name)
	}
}
