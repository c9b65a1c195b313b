// Package snapshot caches the most recent read response of a device.
package snapshot

import (
	"strings"
	"sync/atomic"
	"time"
)

// Snapshot is one complete read response. It is never modified once published.
type Snapshot struct {
	Generation uint64
	HasStatus  bool
	Status     int
	Body       string
	JSON       any
	HasJSON    bool
	Headers    map[string]string
	ReceivedAt time.Time
}

// empty is what readers see before the first completed poll.
var empty = &Snapshot{}

// Cache holds the latest snapshot of a device.
// Store replaces it wholesale, so readers never observe fields of two polls.
type Cache struct {
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(empty)
	return c
}

// Load returns the latest snapshot.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Next reserves the generation of a read cycle. Reserve it before sending the
// request so responses are ordered by when they were asked for.
func (c *Cache) Next() uint64 {
	return c.generation.Add(1)
}

// Store publishes a new snapshot built from a raw response under a fresh generation.
func (c *Cache) Store(status int, headers map[string][]string, body []byte) *Snapshot {
	s, _ := c.StoreGeneration(c.Next(), status, headers, body)
	return s
}

// StoreGeneration publishes the response of the read cycle that reserved gen.
// A response older than the current snapshot is dropped: the current snapshot is
// returned along with false.
func (c *Cache) StoreGeneration(gen uint64, status int, headers map[string][]string, body []byte) (*Snapshot, bool) {
	text := string(body)
	parsed, ok := ParseJSON(text)

	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		flat[name] = strings.Join(values, ", ")
	}

	s := &Snapshot{
		Generation: gen,
		HasStatus:  true,
		Status:     status,
		Body:       text,
		JSON:       parsed,
		HasJSON:    ok,
		Headers:    flat,
		ReceivedAt: time.Now(),
	}
	for {
		cur := c.current.Load()
		if cur.Generation > gen {
			return cur, false
		}
		if c.current.CompareAndSwap(cur, s) {
			return s, true
		}
	}
}
