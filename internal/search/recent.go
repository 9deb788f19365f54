package search

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRecentFilesCapacity bounds the Recent-Files LRU. Capacity is kept
// small deliberately: this is a temporal-relevance signal, not a history
// log, and a few dozen recently touched files is enough to bias fusion.
const DefaultRecentFilesCapacity = 50

// RecentFile is a path plus the time it was last accessed. Only the path is
// kept — never content — so the entry can never itself go stale.
type RecentFile struct {
	Path       string
	AccessedAt time.Time
}

// RecentFiles is an in-memory LRU of recently accessed file paths. It backs
// the "recent" source in Reciprocal Rank Fusion: files the user is actively
// working in are ranked as if a search source had surfaced them.
//
// Protected by a read-write lock, per the Concurrency & Resource Model's
// guidance for the Recent-Files LRU; reads (GetRecentPaths, IsRecentFile)
// take the read lock, mutations take the write lock.
type RecentFiles struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, time.Time]
}

// NewRecentFiles creates a Recent-Files LRU with the given capacity. A
// non-positive capacity falls back to DefaultRecentFilesCapacity.
func NewRecentFiles(capacity int) *RecentFiles {
	if capacity <= 0 {
		capacity = DefaultRecentFilesCapacity
	}
	cache, _ := lru.New[string, time.Time](capacity)
	return &RecentFiles{cache: cache}
}

// NotifyFileAccessed records path as just accessed, evicting the least
// recently used entry if the LRU is full.
func (r *RecentFiles) NotifyFileAccessed(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(path, time.Now())
}

// RemoveRecentFile deletes path from the LRU, if present.
func (r *RecentFiles) RemoveRecentFile(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(path)
}

// GetRecentPaths returns recent paths ordered most-recently-accessed first.
func (r *RecentFiles) GetRecentPaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.cache.Keys()
	paths := make([]string, 0, len(keys))
	// lru.Cache.Keys() is returned oldest-first; reverse for MRU-first.
	for i := len(keys) - 1; i >= 0; i-- {
		paths = append(paths, keys[i])
	}
	return paths
}

// ClearRecentFiles empties the LRU.
func (r *RecentFiles) ClearRecentFiles() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Purge()
}

// IsRecentFile reports whether path is currently tracked.
func (r *RecentFiles) IsRecentFile(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Contains(path)
}

// RecentFilesCount returns the number of tracked paths.
func (r *RecentFiles) RecentFilesCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Len()
}

// RecentChunkRanks returns the tracked paths as a rank list suitable for RRF
// fusion: the most recently accessed path has rank 1. get_recent_chunks in
// the façade contract resolves these ranks against the metadata store to
// produce full chunks; here we only expose the ranking, which is all fusion
// needs.
func (r *RecentFiles) RecentChunkRanks() map[string]int {
	paths := r.GetRecentPaths()
	ranks := make(map[string]int, len(paths))
	for i, p := range paths {
		ranks[p] = i + 1
	}
	return ranks
}
