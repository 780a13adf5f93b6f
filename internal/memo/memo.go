// Package memo memoizes derived results keyed by dataset content and call
// parameters. It relies on the metrics functions being pure: the same series
// and parameters always produce the same result, so a hit is never stale.
package memo

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
	"sync"

	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// Key identifies a memoized result.
type Key string

// Cache is a bounded FIFO store of results. A nil *Cache disables memoization.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[Key]any
	order   []Key
	hits    int
	misses  int
}

// Stats reports cache usage.
type Stats struct {
	Entries int `json:"entries" yaml:"entries"`
	Hits    int `json:"hits" yaml:"hits"`
	Misses  int `json:"misses" yaml:"misses"`
}

// New creates a cache holding at most max entries; max <= 0 means unbounded.
func New(max int) *Cache {
	return &Cache{max: max, entries: map[Key]any{}}
}

func (c *Cache) get(k Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *Cache) put(k Key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; ok {
		c.entries[k] = v
		return
	}
	if c.max > 0 && len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[k] = v
	c.order = append(c.order, k)
}

// Stats returns a snapshot of cache usage.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Do returns the cached result for key or computes it with fn. Errors are not
// cached. Concurrent misses on one key may both compute; results are equal.
func Do[T any](c *Cache, key Key, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}
	if v, ok := c.get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.put(key, v)
	return v, nil
}

// writeField writes a length-prefixed field so adjacent parts cannot collide.
func writeField(h hash.Hash, data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	h.Write(n[:])
	h.Write(data)
}

// NewKey hashes parts in order.
func NewKey(parts ...string) Key {
	h := sha256.New()
	for _, p := range parts {
		writeField(h, []byte(p))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Fingerprint identifies a series by content: name, columns and every raw
// record field. Derived fields are excluded because they follow from the raw text.
func Fingerprint(s metrics.Series) string {
	h := sha256.New()
	writeField(h, []byte(s.Name))
	for _, c := range s.Columns {
		writeField(h, []byte(c))
	}
	var num [8]byte
	for _, r := range s.Records {
		writeField(h, []byte(r.Start))
		writeField(h, []byte(r.End))
		writeField(h, []byte(r.Source))
		binary.BigEndian.PutUint64(num[:], math.Float64bits(r.Value))
		writeField(h, num[:])
		if r.HasValue {
			writeField(h, []byte{1})
		} else {
			writeField(h, []byte{0})
		}
		keys := make([]string, 0, len(r.Fields))
		for k := range r.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(h, []byte(k))
			writeField(h, []byte(r.Fields[k]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
