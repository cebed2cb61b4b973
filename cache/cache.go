// Package cache is an explicit, caller-owned cache of conversion outcomes
// keyed by the content hash of the source plus the conversion options.
// Nothing in the core consults it; callers opt in by routing conversions
// through Outcomes.Convert.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/die-net/lrucache"
	"github.com/klauspost/compress/zstd"

	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// Store is the byte store behind Outcomes.  It matches httpcache.Cache, so
// any of its implementations (lrucache, diskcache, memcache) fit.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

// Converter is the conversion entry point being cached.
type Converter interface {
	Convert(ctx context.Context, src core.Source, opts core.ConvertOptions) (*core.Outcome, error)
}

// Outcomes caches conversion outcomes in a Store, compressed with zstd.
type Outcomes struct {
	store Store
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// New returns an Outcomes cache over store.
func New(store Store) (*Outcomes, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "cache.init", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "cache.init", err)
	}
	return &Outcomes{store: store, enc: enc, dec: dec}, nil
}

// NewLRU returns an Outcomes cache over an in-memory LRU bounded by maxBytes
// of compressed entries.  Entries older than ttl are dropped; ttl <= 0 keeps
// them until evicted.
func NewLRU(maxBytes int64, ttl time.Duration) (*Outcomes, error) {
	return New(lrucache.New(maxBytes, int64(ttl/time.Second)))
}

// Key derives the cache key of a conversion.
func Key(data []byte, opts core.ConvertOptions) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|force=%t|quality=%d|nodiff=%t", opts.Force, opts.Quality, opts.NoDiff)
	return hex.EncodeToString(h.Sum(nil))
}

// entry is the serialised form of an outcome.
type entry struct {
	Encoded      []byte
	Format       core.Format
	StrategyTag  string
	Quality      int
	SSIM         float64
	Accepted     bool
	HashDistance int
	Attempts     []core.Attempt
	Diff         []byte
	OriginalSize int64
	SourceFormat core.Format
}

// Get returns the outcome stored under key.
func (o *Outcomes) Get(key string) (*core.Outcome, bool) {
	raw, ok := o.store.Get(key)
	if !ok {
		return nil, false
	}
	plain, err := o.dec.DecodeAll(raw, nil)
	if err != nil {
		o.store.Delete(key)
		return nil, false
	}
	var e entry
	if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&e); err != nil {
		o.store.Delete(key)
		return nil, false
	}
	return e.outcome(), true
}

// Put stores out under key.
func (o *Outcomes) Put(key string, out *core.Outcome) error {
	if out == nil || out.Candidate == nil {
		return apperrors.New(apperrors.CategoryInput, "cache.put", apperrors.ErrEmptyInput)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entryOf(out)); err != nil {
		return apperrors.Wrap(apperrors.CategoryPipeline, "cache.put", err)
	}
	o.store.Set(key, o.enc.EncodeAll(buf.Bytes(), nil))
	return nil
}

// Convert returns the cached outcome for data and opts, running conv and
// storing its result on a miss.  hit reports whether the cache answered.
// Failed conversions are not cached.
func (o *Outcomes) Convert(ctx context.Context, conv Converter, name string, data []byte, opts core.ConvertOptions) (out *core.Outcome, hit bool, err error) {
	key := Key(data, opts)
	if out, ok := o.Get(key); ok {
		return out, true, nil
	}
	out, err = conv.Convert(ctx, core.Source{
		Reader: bytes.NewReader(data),
		Name:   name,
		Size:   int64(len(data)),
	}, opts)
	if err != nil {
		return nil, false, err
	}
	if err := o.Put(key, out); err != nil {
		return nil, false, err
	}
	return out, false, nil
}

func entryOf(out *core.Outcome) entry {
	c := out.Candidate
	return entry{
		Encoded:      c.Encoded,
		Format:       c.Format,
		StrategyTag:  c.StrategyTag,
		Quality:      c.Quality(),
		SSIM:         c.SSIM(),
		Accepted:     c.Accepted(),
		HashDistance: c.HashDistance,
		Attempts:     c.Attempts,
		Diff:         out.Diff,
		OriginalSize: out.OriginalSize,
		SourceFormat: out.SourceFormat,
	}
}

func (e entry) outcome() *core.Outcome {
	var v core.Verdict = core.Fallback{Quality: e.Quality, SSIM: e.SSIM}
	if e.Accepted {
		v = core.Accepted{Quality: e.Quality, SSIM: e.SSIM}
	}
	return &core.Outcome{
		Candidate: &core.CandidateResult{
			Encoded:      e.Encoded,
			Format:       e.Format,
			StrategyTag:  e.StrategyTag,
			Verdict:      v,
			HashDistance: e.HashDistance,
			Attempts:     e.Attempts,
		},
		Diff:         e.Diff,
		OriginalSize: e.OriginalSize,
		SourceFormat: e.SourceFormat,
	}
}
