// Package localstore keeps notifications in a single JSON blob so the storefront keeps
// working while the remote notification functions are unreachable.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/bitebell/internal/cache"
	"github.com/charlesng35/bitebell/pkg/logger"
)

// DefaultKey is the storage key holding the serialized entry list.
const DefaultKey = "bitebell:local_notifications"

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("localstore: notification not found")

// Store persists entries in a cache.Store under one key. Every read-modify-write cycle
// runs under the store mutex, so a Store must be the only writer of its key.
type Store struct {
	backend cache.Store
	key     string
	now     func() time.Time
	log     *zap.Logger

	mu sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithNow overrides the clock used for ids and timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Store on top of backend.
func New(backend cache.Store, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("localstore: backend is required")
	}
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		now:     time.Now,
		log:     logger.WithModule("localstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// load returns the stored list; unreadable data is treated as an empty store.
func (s *Store) load(ctx context.Context) []Entry {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.log.Warn("read local notifications failed", zap.Error(err))
		return []Entry{}
	}
	if !ok || len(raw) == 0 {
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.log.Warn("local notifications blob is corrupt, starting empty", zap.Error(err))
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

func (s *Store) save(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("localstore: encode: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, raw, 0); err != nil {
		return fmt.Errorf("localstore: write: %w", err)
	}
	return nil
}

// mutate runs fn over the current list and persists the result when fn reports a change.
func (s *Store) mutate(ctx context.Context, fn func([]Entry) ([]Entry, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := fn(s.load(ctx))
	if !changed {
		return nil
	}
	return s.save(ctx, next)
}

func (s *Store) newID() string {
	return IDPrefix + strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + uuid.NewString()[:8]
}

// GetAll returns every entry in storage order.
func (s *Store) GetAll(ctx context.Context) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

// GetByUser returns entries visible to userID, newest first.
func (s *Store) GetByUser(ctx context.Context, userID string) []Entry {
	all := s.GetAll(ctx)

	out := make([]Entry, 0, len(all))
	for _, entry := range all {
		if entry.VisibleTo(userID) {
			out = append(out, entry)
		}
	}
	SortNewestFirst(out)
	return out
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	for _, entry := range s.GetAll(ctx) {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Create stores entry with a fresh local id, the current timestamp and unread flags.
func (s *Store) Create(ctx context.Context, entry Entry) (Entry, error) {
	entry.ID = s.newID()
	entry.Timestamp = s.now().UTC()
	entry.IsNew = true
	entry.IsRead = false
	if entry.TargetUserID == BroadcastTarget {
		entry.IsBroadcast = true
	}

	err := s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		return append([]Entry{entry}, entries...), true
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Update applies patch to the entry with id.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (Entry, error) {
	var (
		updated Entry
		found   bool
	)
	err := s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		for i := range entries {
			if entries[i].ID == id {
				patch.apply(&entries[i])
				updated = entries[i]
				found = true
				return entries, true
			}
		}
		return entries, false
	})
	if err != nil {
		return Entry{}, err
	}
	if !found {
		return Entry{}, ErrNotFound
	}
	return updated, nil
}

// MarkAsRead flags one entry as read and no longer new.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	read, seen := true, false
	_, err := s.Update(ctx, id, Patch{IsRead: &read, IsNew: &seen})
	return err
}

// MarkAllAsRead marks every entry visible to userID as read and returns how many changed.
func (s *Store) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	changed := 0
	err := s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		for i := range entries {
			if !entries[i].VisibleTo(userID) || (entries[i].IsRead && !entries[i].IsNew) {
				continue
			}
			entries[i].IsRead = true
			entries[i].IsNew = false
			changed++
		}
		return entries, changed > 0
	})
	return changed, err
}

// SetRead flips the read flag on every listed id and returns how many entries matched.
func (s *Store) SetRead(ctx context.Context, ids []string, read bool) (int, error) {
	return s.SetReadFor(ctx, "", ids, read)
}

// SetReadFor is SetRead restricted to entries targeted at owner. An empty owner matches
// every entry.
func (s *Store) SetReadFor(ctx context.Context, owner string, ids []string, read bool) (int, error) {
	wanted := toSet(ids)
	matched := 0
	err := s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		for i := range entries {
			if _, ok := wanted[entries[i].ID]; !ok || !entries[i].OwnedBy(owner) {
				continue
			}
			entries[i].IsRead = read
			if read {
				entries[i].IsNew = false
			}
			matched++
		}
		return entries, matched > 0
	})
	return matched, err
}

// Delete removes the entry with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.DeleteMany(ctx, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMany removes every listed id and returns how many were removed.
func (s *Store) DeleteMany(ctx context.Context, ids []string) (int, error) {
	return s.DeleteManyFor(ctx, "", ids)
}

// DeleteManyFor is DeleteMany restricted to entries targeted at owner.
func (s *Store) DeleteManyFor(ctx context.Context, owner string, ids []string) (int, error) {
	wanted := toSet(ids)
	removed := 0
	err := s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		kept := entries[:0]
		for _, entry := range entries {
			if _, ok := wanted[entry.ID]; ok && entry.OwnedBy(owner) {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		return kept, removed > 0
	})
	return removed, err
}

// ClearAll removes entries targeted at userID. An empty userID wipes the store.
func (s *Store) ClearAll(ctx context.Context, userID string) error {
	if userID == "" {
		return s.mutate(ctx, func([]Entry) ([]Entry, bool) {
			return []Entry{}, true
		})
	}
	return s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.TargetUserID != userID {
				kept = append(kept, entry)
			}
		}
		return kept, true
	})
}

// GetStats counts entries visible to userID, or all entries when userID is empty.
func (s *Store) GetStats(ctx context.Context, userID string) Stats {
	entries := s.GetAll(ctx)
	stats := Stats{ByType: map[string]int{}}
	for _, entry := range entries {
		if userID != "" && !entry.VisibleTo(userID) {
			continue
		}
		stats.Total++
		if entry.IsRead {
			stats.Read++
		} else {
			stats.Unread++
		}
		if entry.IsBroadcast || entry.TargetUserID == "" || entry.TargetUserID == BroadcastTarget {
			stats.Broadcast++
		}
		stats.ByType[entry.Type]++
	}
	return stats
}

// Sync replaces the stored list with entries. It does not merge: callers must include
// any local-only entries they want to keep.
func (s *Store) Sync(ctx context.Context, entries []Entry) error {
	cpy := append([]Entry(nil), entries...)
	return s.mutate(ctx, func([]Entry) ([]Entry, bool) {
		return cpy, true
	})
}

// SyncUser replaces only the entries visible to userID with entries. Entries targeted at
// other users are kept, so mirroring one user's remote view does not drop another's.
func (s *Store) SyncUser(ctx context.Context, userID string, entries []Entry) error {
	cpy := append([]Entry(nil), entries...)
	return s.mutate(ctx, func(current []Entry) ([]Entry, bool) {
		next := cpy
		for _, entry := range current {
			if !entry.VisibleTo(userID) {
				next = append(next, entry)
			}
		}
		return next, true
	})
}

// SeedDemo installs sample notifications on first run. It reports whether anything was written.
func (s *Store) SeedDemo(ctx context.Context) (bool, error) {
	seeded := false
	err := s.mutate(ctx, func(entries []Entry) ([]Entry, bool) {
		if len(entries) > 0 {
			return entries, false
		}
		now := s.now().UTC()
		demo := demoEntries(now)
		for i := range demo {
			demo[i].ID = s.newID()
		}
		seeded = true
		return demo, true
	})
	return seeded, err
}

func demoEntries(now time.Time) []Entry {
	return []Entry{
		{
			Type:         "system",
			Title:        "Welcome to BiteBell",
			Message:      "Order updates and deals will show up here.",
			Timestamp:    now,
			IsNew:        true,
			TargetUserID: BroadcastTarget,
			IsBroadcast:  true,
		},
		{
			Type:         "promo",
			Title:        "Weekend deal",
			Message:      "Two large pizzas for the price of one, this weekend only.",
			Timestamp:    now.Add(-time.Hour),
			IsNew:        true,
			ActionURL:    "/deals",
			TargetUserID: BroadcastTarget,
			IsBroadcast:  true,
		},
		{
			Type:         "order",
			Title:        "Order delivered",
			Message:      "Your last order was delivered. Enjoy your meal!",
			Timestamp:    now.Add(-24 * time.Hour),
			IsRead:       true,
			TargetUserID: BroadcastTarget,
			IsBroadcast:  true,
		},
	}
}

// SortNewestFirst orders entries by timestamp descending.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
