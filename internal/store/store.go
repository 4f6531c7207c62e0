// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package store persists location events in BadgerDB. Events are written
// before any delivery attempt is made (ACID, fsync), so a crash or a dead
// network never loses a sample. Each event lives under an "unsynced:" key
// until the sink acknowledges it, then moves to a "synced:" key where it is
// retained until the retention purge removes it.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/waypointd/internal/event"
	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/metrics"
)

// Key prefixes for the two sync states. Keys are the prefix plus the event
// id zero-padded to 20 digits so lexicographic order matches id order.
const (
	prefixUnsynced = "unsynced:"
	prefixSynced   = "synced:"

	seqKey       = "seq:event-id"
	seqBandwidth = 128
)

// Errors returned by the store.
var (
	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("event store is closed")

	// ErrNilEvent is returned when a nil event is passed to Append.
	ErrNilEvent = errors.New("event cannot be nil")
)

// Store is the durable event store. It is the only shared mutable resource
// in the daemon; every logical operation runs inside a single BadgerDB
// transaction, so concurrent appends, sync marks, and purges never observe
// a torn write.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	config Config

	mu     sync.RWMutex
	closed bool
}

// Stats contains store counters for the status API and metrics.
type Stats struct {
	// UnsyncedCount is the number of events awaiting delivery.
	UnsyncedCount int64

	// SyncedCount is the number of delivered events awaiting retention purge.
	SyncedCount int64

	// DBSizeBytes is the estimated database size on disk.
	DBSizeBytes int64
}

// Open creates or opens the event store at the configured path.
func Open(cfg *Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.MemTableSize = cfg.MemTableSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumCompactors = cfg.NumCompactors
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	// The sequence leases id blocks; ids skipped by a crash are never
	// reused, which is exactly the contract Append needs.
	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open id sequence: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Dur("retention", cfg.RetentionWindow).
		Msg("event store opened")

	return &Store{db: db, seq: seq, config: *cfg}, nil
}

// Append inserts a new unsynced event and returns its assigned id. The
// event's ID and Synced fields are overwritten; everything else is stored
// as given. Storage faults are returned to the caller, never swallowed.
func (s *Store) Append(ctx context.Context, ev *event.LocationEvent) (uint64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	if ev == nil {
		return 0, ErrNilEvent
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	id, err := s.seq.Next()
	if err != nil {
		metrics.StoreWriteFailures.Inc()
		return 0, fmt.Errorf("next event id: %w", err)
	}
	// Sequence values start at 0; event ids start at 1.
	id++

	ev.ID = id
	ev.Synced = false

	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(unsyncedKey(id), data)
	})
	if err != nil {
		metrics.StoreWriteFailures.Inc()
		return 0, fmt.Errorf("append event: %w", err)
	}

	metrics.CapturesTotal.Inc()
	return id, nil
}

// ListUnsynced returns all unsynced events ordered by capture time
// descending (most recent first). This ordering governs replay order
// during a drain pass.
func (s *Store) ListUnsynced(ctx context.Context) ([]*event.LocationEvent, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	s.mu.RUnlock()

	var events []*event.LocationEvent

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixUnsynced)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var ev event.LocationEvent
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("store: failed to unmarshal event")
				continue
			}
			events = append(events, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate unsynced events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].CapturedAt != events[j].CapturedAt {
			return events[i].CapturedAt > events[j].CapturedAt
		}
		return events[i].ID > events[j].ID
	})

	return events, nil
}

// CountUnsynced returns the number of unsynced events. Key-only iteration,
// no value reads, no caching.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixUnsynced)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count unsynced events: %w", err)
	}
	return count, nil
}

// MarkSynced flips the given events to synced. Idempotent: an id that is
// already synced, or that does not exist at all, is a no-op rather than an
// error. Each id moves in its own transaction so an interruption part way
// through never un-marks an acknowledged event.
func (s *Store) MarkSynced(ctx context.Context, ids ...uint64) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.markOne(id); err != nil {
			return fmt.Errorf("mark event %d synced: %w", id, err)
		}
	}
	return nil
}

func (s *Store) markOne(id uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(unsyncedKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Already synced or never existed. Either way, nothing to do.
			return nil
		}
		if err != nil {
			return fmt.Errorf("get unsynced event: %w", err)
		}

		var ev event.LocationEvent
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ev)
		})
		if err != nil {
			return fmt.Errorf("unmarshal event: %w", err)
		}

		ev.Synced = true
		data, err := json.Marshal(&ev)
		if err != nil {
			return fmt.Errorf("marshal synced event: %w", err)
		}

		if err := txn.Set(syncedKey(id), data); err != nil {
			return fmt.Errorf("set synced event: %w", err)
		}
		if err := txn.Delete(unsyncedKey(id)); err != nil {
			return fmt.Errorf("delete unsynced event: %w", err)
		}
		return nil
	})
}

// PurgeSyncedOlderThan deletes synced events captured before cutoffMillis
// and returns how many were removed. Unsynced events are never touched,
// regardless of age: losing undelivered data is worse than storage growth.
func (s *Store) PurgeSyncedOlderThan(ctx context.Context, cutoffMillis int64) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Collect keys first; Badger cannot delete while iterating.
		var keysToDelete [][]byte
		prefix := []byte(prefixSynced)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var ev event.LocationEvent
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				continue
			}

			if ev.CapturedAt < cutoffMillis {
				keyCopy := make([]byte, len(item.Key()))
				copy(keyCopy, item.Key())
				keysToDelete = append(keysToDelete, keyCopy)
			}
		}

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge synced events: %w", err)
	}

	if count > 0 {
		metrics.PurgedEvents.Add(float64(count))
	}
	return count, nil
}

// Stats returns current store counters and updates the pending gauge.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return Stats{}
	}

	var unsynced, synced int64
	if err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefixUnsynced)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			unsynced++
		}
		p = []byte(prefixSynced)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			synced++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("store: stats count failed")
	}

	lsm, vlog := s.db.Size()

	metrics.PendingEvents.Set(float64(unsynced))
	metrics.StoreSizeBytes.Set(float64(lsm + vlog))

	return Stats{
		UnsyncedCount: unsynced,
		SyncedCount:   synced,
		DBSizeBytes:   lsm + vlog,
	}
}

// RunGC triggers BadgerDB value log garbage collection.
func (s *Store) RunGC() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	for {
		err := s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close releases the id sequence and shuts the database down. A close that
// does not finish within CloseTimeout returns an error instead of hanging.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	if err := s.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("store: failed to release id sequence")
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("event store closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}

func unsyncedKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixUnsynced, id))
}

func syncedKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixSynced, id))
}
