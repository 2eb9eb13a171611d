package wal

import (
	"errors"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/store"
)

// retry backoff for storage failures
var (
	retryBackoff    = 10 * time.Millisecond
	maxRetryBackoff = time.Second
)

// RetryStorage runs fn until it returns anything other than a storage I/O error.
// There is no upper bound on the number of attempts.
func RetryStorage(fn func() error) error {
	backoff := retryBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, store.ErrStorageIO) {
			return err
		}
		log.Warningf("storage failure (attempt %d), retrying in %s: %v", attempt, backoff, err)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// Apply executes the request of a ready entry against node. Storage failures are
// retried until they clear. A delete of a key that is already gone counts as applied.
func Apply(node store.IStore, ready Entry) error {
	return RetryStorage(func() error {
		switch ready.Request {
		case RequestTPut:
			_, err := node.Put(ready.Key, ready.Value)
			return err
		case RequestTDelete:
			if err := node.Delete(ready.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		default:
			return nil
		}
	})
}

// RebuildStats summarises a replay.
type RebuildStats struct {
	Entries   int // Entries read from the log
	Committed int // Committed operations applied to the node
	Skipped   int // Commits without a preceding ready entry
	Failed    int // Commits that could not be applied
}

// Rebuild replays the log into node. Every commit is matched with the nearest
// preceding ready entry of the same operation id and that request is applied.
// Aborted and undecided operations leave no trace.
func (l *Log) Rebuild(node store.IStore) RebuildStats {
	entries := l.Entries()
	stats := RebuildStats{Entries: len(entries)}
	pending := make(map[uint64]Entry)

	for _, e := range entries {
		switch e.Type {
		case EntryTReady:
			pending[e.OpID] = e
		case EntryTCommit:
			ready, ok := pending[e.OpID]
			if !ok {
				log.Warningf("commit for op %d has no ready entry, skipping", e.OpID)
				stats.Skipped++
				continue
			}
			if err := Apply(node, ready); err != nil {
				log.Errorf("failed to replay op %d (%s %q): %v", e.OpID, ready.Request, ready.Key, err)
				stats.Failed++
				continue
			}
			stats.Committed++
		}
	}

	log.Infof("rebuilt node from %d log entries: %d applied, %d skipped, %d failed",
		stats.Entries, stats.Committed, stats.Skipped, stats.Failed)
	return stats
}
