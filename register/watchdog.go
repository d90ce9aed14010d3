package register

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/aiserve/msserve/cmn/nlog"
	"github.com/aiserve/msserve/lifecycle"
)

// Watchdog tracks last-seen-ping liveness for a set of peers (spec.md
// §4.I "a heartbeat watchdog (Ping/Pong) runs between peers... on
// missed pings beyond a threshold the watcher raises the same
// lifecycle latch"). The liveness table is an in-memory buntdb
// database: each Heartbeat sets a key with a TTL equal to
// interval*threshold, so a peer's entry naturally expires the moment
// it has missed enough pings — a closer fit than a bare map for
// "liveness record with a TTL-like missed-threshold" (SPEC_FULL.md §9).
type Watchdog struct {
	db       *buntdb.DB
	ttl      time.Duration
	interval time.Duration
	latch    *lifecycle.Handle

	mu    sync.Mutex
	peers map[string]struct{}
}

// NewWatchdog opens an in-memory buntdb instance for the liveness
// table (":memory:" — never persisted to disk, matching aistore's
// use of buntdb as an in-process indexed store rather than a
// persisted database).
func NewWatchdog(interval time.Duration, threshold int, latch *lifecycle.Handle) (*Watchdog, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	if threshold <= 0 {
		threshold = 3
	}
	w := &Watchdog{
		db:       db,
		ttl:      interval * time.Duration(threshold),
		interval: interval,
		latch:    latch,
		peers:    make(map[string]struct{}),
	}
	return w, nil
}

// Heartbeat records that peerID was just heard from, refreshing its
// TTL-backed liveness entry.
func (w *Watchdog) Heartbeat(peerID string) error {
	w.mu.Lock()
	w.peers[peerID] = struct{}{}
	w.mu.Unlock()
	return w.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(peerID, "alive", &buntdb.SetOptions{Expires: true, TTL: w.ttl})
		return err
	})
}

// alive reports whether peerID's liveness entry has not yet expired.
func (w *Watchdog) alive(peerID string) bool {
	var found bool
	_ = w.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(peerID)
		found = err == nil
		return nil
	})
	return found
}

// Run polls every interval; the first peer observed to have missed its
// threshold of pings raises the lifecycle latch, triggering cooperative
// shutdown (spec.md §4.I).
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			tracked := make([]string, 0, len(w.peers))
			for p := range w.peers {
				tracked = append(tracked, p)
			}
			w.mu.Unlock()
			for _, p := range tracked {
				if !w.alive(p) {
					nlog.Warningf("watchdog: peer %s missed heartbeat threshold, triggering shutdown", p)
					w.latch.Stop()
					return
				}
			}
		}
	}
}

// Close releases the in-memory liveness store.
func (w *Watchdog) Close() error { return w.db.Close() }
