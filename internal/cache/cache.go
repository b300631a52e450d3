// Package cache keeps recently synced remote snapshots in memory so a
// returning session can show its data before the next sync completes.
package cache

import (
	"context"
	"log/slog"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/store"
)

// Snapshots caches one snapshot per scope. Values are cloned on the way in
// and out so callers never share slices with the cache.
type Snapshots struct {
	lru *LRU[core.Snapshot]
}

func NewSnapshots(maxScopes int, ttl time.Duration) *Snapshots {
	return &Snapshots{lru: NewLRU[core.Snapshot](maxScopes, ttl)}
}

func (s *Snapshots) Get(scope store.Scope) (core.Snapshot, bool) {
	snap, ok := s.lru.Get(scope.String())
	if !ok {
		return core.Snapshot{}, false
	}
	return snap.Clone(), true
}

func (s *Snapshots) Put(scope store.Scope, snap core.Snapshot) {
	s.lru.Set(scope.String(), snap.Clone())
}

func (s *Snapshots) Invalidate(scope store.Scope) {
	s.lru.Delete(scope.String())
}

func (s *Snapshots) CleanExpired() int {
	return s.lru.CleanExpired()
}

func (s *Snapshots) Len() int {
	return s.lru.Len()
}

// Cleaner is a cache with expiring entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically removes expired entries from registered caches.
type Janitor struct {
	caches []Cleaner
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewJanitor(caches ...Cleaner) *Janitor {
	return &Janitor{
		caches: caches,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called or ctx is done.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go j.loop(ctx, interval)
}

func (j *Janitor) loop(ctx context.Context, interval time.Duration) {
	defer close(j.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := 0
			for _, c := range j.caches {
				removed += c.CleanExpired()
			}
			if removed > 0 {
				slog.DebugContext(ctx, "Expired cache entries removed", "count", removed)
			}
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the cleanup loop and waits for it to exit. Stop must only be
// called after Start.
func (j *Janitor) Stop() {
	close(j.stopCh)
	<-j.doneCh
}
