// Package idempotency persists captured responses keyed by caller-supplied
// idempotency keys, with a 24 hour lifetime. Replays within the window
// return the captured response verbatim; expired records are treated as
// absent.
package idempotency

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/pierrec/lz4"
	"github.com/ugorji/go/codec"

	"github.com/bigfin/bigfind/internal/storage/keyValueDb"
)

// DefaultTTL is how long a captured response stays replayable.
const DefaultTTL = 24 * time.Hour

// compressThreshold is the response size above which the payload is stored
// lz4-compressed. One leading scheme byte tags the framing.
const compressThreshold = 512

const (
	schemeRaw byte = 0
	schemeLZ4 byte = 1
)

// Record is a captured response for one idempotency key.
type Record struct {
	Key        string    `codec:"key"`
	Response   []byte    `codec:"response"`
	StatusCode int       `codec:"status_code"`
	ExpiresAt  time.Time `codec:"expires_at"`
}

// Expired reports whether the record is past its lifetime at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store reads and writes idempotency records on a keyValueDb.
type Store struct {
	db    keyValueDb.DB
	ttl   time.Duration
	clock func() time.Time
}

// NewStore creates a store with the default 24h lifetime.
func NewStore(db keyValueDb.DB) *Store {
	return &Store{db: db, ttl: DefaultTTL, clock: time.Now}
}

// WithTTL overrides the record lifetime.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	s.ttl = ttl
	return s
}

// WithClock overrides the store clock. Test hook.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

var handle = func() *codec.BincHandle {
	h := new(codec.BincHandle)
	h.Canonical = true
	return h
}()

// Get returns the live record for key, or nil when absent or expired.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.db.Read(ctx, []byte(key))
	if err != nil {
		if errors.Is(err, keyValueDb.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	payload, err := unframe(raw)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := codec.NewDecoderBytes(payload, handle).Decode(&rec); err != nil {
		return nil, err
	}
	if rec.Expired(s.clock()) {
		// Lazy cleanup; a failed delete only delays the next overwrite.
		_ = s.db.Delete(ctx, []byte(key))
		return nil, nil
	}
	return &rec, nil
}

// Put captures a response under key. An existing live record is left
// untouched: the first writer wins and later captures are ignored, which
// keeps replayed calls returning the original response.
func (s *Store) Put(ctx context.Context, key string, response []byte, statusCode int) (*Record, error) {
	if existing, err := s.Get(ctx, key); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	rec := &Record{
		Key:        key,
		Response:   response,
		StatusCode: statusCode,
		ExpiresAt:  s.clock().Add(s.ttl),
	}
	var payload []byte
	if err := codec.NewEncoderBytes(&payload, handle).Encode(rec); err != nil {
		return nil, err
	}
	framed, err := frame(payload)
	if err != nil {
		return nil, err
	}
	if err := s.db.Write(ctx, []byte(key), framed); err != nil {
		return nil, err
	}
	return rec, nil
}

// frame prepends the scheme byte, compressing large payloads. Compressed
// frames carry the uncompressed length so decompression allocates exactly
// once, whatever the ratio.
func frame(payload []byte) ([]byte, error) {
	if len(payload) < compressThreshold {
		return append([]byte{schemeRaw}, payload...), nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(payload)))
	n, err := lz4.CompressBlock(payload, buf, nil)
	if err != nil || n == 0 || n >= len(payload) {
		// Incompressible payloads fall back to raw framing.
		return append([]byte{schemeRaw}, payload...), nil
	}
	out := make([]byte, 0, n+5)
	out = append(out, schemeLZ4)
	out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, buf[:n]...), nil
}

// unframe strips the scheme byte and decompresses when needed.
func unframe(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty idempotency record")
	}
	switch raw[0] {
	case schemeRaw:
		return raw[1:], nil
	case schemeLZ4:
		if len(raw) < 5 {
			return nil, errors.New("truncated idempotency record")
		}
		size := binary.BigEndian.Uint32(raw[1:5])
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(raw[5:], dst)
		if err != nil {
			return nil, errors.New("idempotency record decompression failed")
		}
		return dst[:n], nil
	default:
		return nil, errors.New("unknown idempotency record framing")
	}
}
