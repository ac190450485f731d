package auth

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/thechompapp/chompauth/event"
	"github.com/thechompapp/chompauth/store"
)

// OfflineCache holds the last known identity plus its capture time, used
// to authenticate while the remote service is unreachable. A snapshot is
// captured on every login and deleted on explicit logout; it deliberately
// survives session expiry and process restarts, since its purpose is to
// bridge gaps in connectivity, not gaps in authentication intent.
type OfflineCache struct {
	store store.Store
	now   func() time.Time
	ttl   time.Duration
	log   *slog.Logger
}

func newOfflineCache(st store.Store, ttl time.Duration, now func() time.Time, bus *event.Bus, log *slog.Logger) *OfflineCache {
	c := &OfflineCache{
		store: st,
		now:   now,
		ttl:   ttl,
		log:   log.With("component", "offline_cache"),
	}
	event.Subscribe(bus, func(e LoginComplete) { c.capture(e.Identity) })
	event.Subscribe(bus, func(LogoutComplete) { c.clear() })
	return c
}

func (c *OfflineCache) capture(id Identity) {
	snap := OfflineSnapshot{Identity: id, CapturedAt: c.now()}
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.Warn("marshal snapshot failed", "error", err)
		return
	}
	if err := c.store.Put(keyOfflineSnapshot, data); err != nil {
		c.log.Warn("persist snapshot failed", "error", err)
	}
}

func (c *OfflineCache) clear() {
	if err := c.store.Delete(keyOfflineSnapshot); err != nil {
		c.log.Warn("delete snapshot failed", "error", err)
	}
}

// Snapshot returns the cached identity if a snapshot exists and is still
// within its TTL. A stale snapshot is discarded and treated as absent,
// forcing re-authentication.
func (c *OfflineCache) Snapshot() (Identity, bool) {
	data, err := c.store.Get(keyOfflineSnapshot)
	if err != nil {
		return Identity{}, false
	}
	var snap OfflineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.clear()
		return Identity{}, false
	}
	if !snap.Fresh(c.now(), c.ttl) {
		c.clear()
		return Identity{}, false
	}
	return snap.Identity, true
}
