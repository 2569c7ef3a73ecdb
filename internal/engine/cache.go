// Package engine - cache.go implements the response cache and the
// in-flight registry.
//
// DESIGN: Both structures share one mutex. The cache stores accepted
// content rather than final shaped text, so a hit can be re-shaped for
// the scene it is served into. Expiry is lazy: an expired entry is
// evicted on the lookup that finds it. The in-flight registry
// deduplicates concurrent identical requests: exactly one caller owns
// the generation, everyone else joins and waits on its channel.
package engine

import (
	"sync"
	"time"
)

// cachedContent is what a completed generation leaves behind for cache
// hits and joined waiters. Text is pre-shaping content.
type cachedContent struct {
	Text     string
	Provider string
	Score    int
}

type cacheEntry struct {
	content   cachedContent
	speaker   string
	expiresAt time.Time
}

// inflightTask is the rendezvous point for joined callers. resp and err
// are written exactly once, before done is closed.
type inflightTask struct {
	done chan struct{}
	resp *cachedContent
	err  error
}

// registry owns the TTL cache and the in-flight map.
type registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	cache    map[string]cacheEntry
	inflight map[string]*inflightTask
}

func newRegistry(ttl time.Duration) *registry {
	return &registry{
		ttl:      ttl,
		cache:    make(map[string]cacheEntry),
		inflight: make(map[string]*inflightTask),
	}
}

// Lookup returns the cached content for fp if present and fresh.
// An expired entry is evicted here rather than by a background sweeper.
func (r *registry) Lookup(fp string, now time.Time) (cachedContent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[fp]
	if !ok {
		return cachedContent{}, false
	}
	if now.After(entry.expiresAt) {
		delete(r.cache, fp)
		return cachedContent{}, false
	}
	return entry.content, true
}

// Store records a freshly generated response under fp.
func (r *registry) Store(fp, speaker string, c cachedContent, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[fp] = cacheEntry{content: c, speaker: speaker, expiresAt: now.Add(r.ttl)}
}

// AcquireOrJoin registers fp as in-flight. The first caller for a given
// fingerprint becomes the owner (owner=true) and must Settle the task;
// later callers receive the same task and wait on task.done.
// The check and the insert happen under one lock, so two racing callers
// can never both own the generation.
func (r *registry) AcquireOrJoin(fp string) (task *inflightTask, owner bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.inflight[fp]; ok {
		return t, false
	}
	t := &inflightTask{done: make(chan struct{})}
	r.inflight[fp] = t
	return t, true
}

// Settle publishes the outcome of an owned task and removes it from the
// in-flight map. Removal is unconditional: success or failure, the slot
// is freed so the next identical request starts fresh.
func (r *registry) Settle(fp string, task *inflightTask, resp *cachedContent, err error) {
	r.mu.Lock()
	delete(r.inflight, fp)
	r.mu.Unlock()
	task.resp = resp
	task.err = err
	close(task.done)
}

// InvalidateSpeaker drops every cache entry for the given speaker and
// returns how many were removed. In-flight work is not interrupted.
func (r *registry) InvalidateSpeaker(speaker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for fp, entry := range r.cache {
		if entry.speaker == speaker {
			delete(r.cache, fp)
			n++
		}
	}
	return n
}

// Sizes reports cache and in-flight counts for the health snapshot.
func (r *registry) Sizes() (cached, inflight int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache), len(r.inflight)
}
