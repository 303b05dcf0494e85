package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	pebble "github.com/cockroachdb/pebble"

	"shutterbox/internal/config"
)

var (
	itemPrefix     = []byte("item/")
	itemUpperBound = []byte("item0") // '0' sorts right after '/'
)

// valueHeader is created_at (8 bytes) followed by the capture ID length (2 bytes).
const valueHeader = 10

// PebbleStore keeps pending items in a Pebble database. Keys are itemPrefix
// followed by a big-endian sequence so iteration order equals insertion order.
type PebbleStore struct {
	db     *pebble.DB
	path   string
	dir    string
	limits limits

	mu           sync.Mutex
	seq          uint64
	pending      int
	pendingBytes int64
}

// OpenPebble opens or creates the Pebble store inside the state directory and
// recovers the sequence and counters from the existing keys.
func OpenPebble(cfg *config.Config) (*PebbleStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, storageErr("open", fmt.Errorf("ensure directories: %w", err))
	}
	path := filepath.Join(cfg.Paths.StateDir, "queue.pebble")
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, storageErr("open", fmt.Errorf("open pebble: %w", err))
	}
	s := &PebbleStore{
		db:     db,
		path:   path,
		dir:    cfg.Paths.StateDir,
		limits: limitsFromConfig(cfg),
	}
	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, storageErr("open", err)
	}
	return s, nil
}

func (s *PebbleStore) recover() error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: itemPrefix, UpperBound: itemUpperBound})
	if err != nil {
		return fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		id, err := decodeKey(iter.Key())
		if err != nil {
			return err
		}
		_, _, payloadLen, err := decodeHeader(iter.Value())
		if err != nil {
			return fmt.Errorf("item %d: %w", id, err)
		}
		s.pending++
		s.pendingBytes += int64(payloadLen)
		if id > s.seq {
			s.seq = id
		}
	}
	return iter.Error()
}

// Path returns the database directory.
func (s *PebbleStore) Path() string { return s.path }

// Put appends a payload with a synchronous single-key write.
func (s *PebbleStore) Put(_ context.Context, captureID string, payload []byte) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storageErr("put", ErrClosed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limits.check(s.dir, s.pending, s.pendingBytes, len(payload)); err != nil {
		return 0, storageErr("put", err)
	}
	if s.seq >= math.MaxInt64 {
		return 0, storageErr("put", errors.New("sequence exhausted"))
	}
	next := s.seq + 1
	value, err := encodeValue(captureID, time.Now().UTC(), payload)
	if err != nil {
		return 0, storageErr("put", err)
	}
	if err := s.db.Set(encodeKey(next), value, pebble.Sync); err != nil {
		return 0, storageErr("put", fmt.Errorf("set item %d: %w", next, err))
	}
	s.seq = next
	s.pending++
	s.pendingBytes += int64(len(payload))
	return int64(next), nil
}

// ListAll returns every pending item ordered by key.
func (s *PebbleStore) ListAll(_ context.Context) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, storageErr("list", ErrClosed)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: itemPrefix, UpperBound: itemUpperBound})
	if err != nil {
		return nil, storageErr("list", fmt.Errorf("open iterator: %w", err))
	}
	defer iter.Close()

	var items []Item
	for ok := iter.First(); ok; ok = iter.Next() {
		id, err := decodeKey(iter.Key())
		if err != nil {
			return nil, storageErr("list", err)
		}
		item, err := decodeValue(iter.Value())
		if err != nil {
			return nil, storageErr("list", fmt.Errorf("item %d: %w", id, err))
		}
		item.ID = int64(id)
		items = append(items, item)
	}
	if err := iter.Error(); err != nil {
		return nil, storageErr("list", err)
	}
	return items, nil
}

// Remove deletes one item. Removing an unknown ID is not an error.
func (s *PebbleStore) Remove(_ context.Context, id int64) error {
	if s == nil || s.db == nil {
		return storageErr("remove", ErrClosed)
	}
	if id <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := encodeKey(uint64(id))
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr("remove", fmt.Errorf("get item %d: %w", id, err))
	}
	_, _, payloadLen, decodeErr := decodeHeader(value)
	_ = closer.Close()
	if decodeErr != nil {
		return storageErr("remove", fmt.Errorf("item %d: %w", id, decodeErr))
	}
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return storageErr("remove", fmt.Errorf("delete item %d: %w", id, err))
	}
	s.pending--
	s.pendingBytes -= int64(payloadLen)
	return nil
}

// ClearThrough deletes every item with an ID up to and including id as one range tombstone.
func (s *PebbleStore) ClearThrough(_ context.Context, id int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storageErr("clear", ErrClosed)
	}
	if id <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteRangeLocked(encodeKey(uint64(id) + 1))
}

// Clear deletes every pending item.
func (s *PebbleStore) Clear(_ context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storageErr("clear", ErrClosed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteRangeLocked(itemUpperBound)
}

func (s *PebbleStore) deleteRangeLocked(end []byte) (int64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: itemPrefix, UpperBound: end})
	if err != nil {
		return 0, storageErr("clear", fmt.Errorf("open iterator: %w", err))
	}
	var (
		count int64
		bytes int64
	)
	for ok := iter.First(); ok; ok = iter.Next() {
		_, _, payloadLen, err := decodeHeader(iter.Value())
		if err != nil {
			_ = iter.Close()
			return 0, storageErr("clear", err)
		}
		count++
		bytes += int64(payloadLen)
	}
	if err := iter.Close(); err != nil {
		return 0, storageErr("clear", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.db.DeleteRange(itemPrefix, end, pebble.Sync); err != nil {
		return 0, storageErr("clear", fmt.Errorf("delete range: %w", err))
	}
	s.pending -= int(count)
	s.pendingBytes -= bytes
	return count, nil
}

// Stats returns the pending count, total payload size and oldest item time.
func (s *PebbleStore) Stats(_ context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, storageErr("stats", ErrClosed)
	}
	s.mu.Lock()
	stats := Stats{Pending: s.pending, PayloadBytes: s.pendingBytes}
	s.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: itemPrefix, UpperBound: itemUpperBound})
	if err != nil {
		return Stats{}, storageErr("stats", fmt.Errorf("open iterator: %w", err))
	}
	defer iter.Close()
	if iter.First() {
		created, _, _, err := decodeHeader(iter.Value())
		if err != nil {
			return Stats{}, storageErr("stats", err)
		}
		stats.OldestAt = created
	}
	return stats, nil
}

// CheckHealth reports whether the Pebble directory exists and can be iterated.
func (s *PebbleStore) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Backend:       config.BackendPebble,
		DBPath:        s.path,
		SchemaVersion: "pebble/" + strconv.Itoa(schemaVersion),
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat pebble store: %w", err)
	}
	if !info.IsDir() {
		return health, fmt.Errorf("pebble store path %q is not a directory", s.path)
	}
	health.DatabaseExists = true
	if s.db == nil {
		return health, errors.New("pebble store unavailable")
	}

	items, err := s.ListAll(ctx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.DatabaseReadable = true
	health.TotalItems = len(items)

	// Counters kept in memory must agree with what is on disk.
	s.mu.Lock()
	health.IntegrityCheck = s.pending == len(items)
	s.mu.Unlock()
	if free, err := freeBytes(s.dir); err == nil {
		health.FreeBytes = free
	}
	return health, nil
}

// Close flushes and closes the database.
func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func encodeKey(id uint64) []byte {
	key := make([]byte, len(itemPrefix)+8)
	copy(key, itemPrefix)
	binary.BigEndian.PutUint64(key[len(itemPrefix):], id)
	return key
}

func decodeKey(key []byte) (uint64, error) {
	if len(key) != len(itemPrefix)+8 {
		return 0, fmt.Errorf("malformed item key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(itemPrefix):]), nil
}

func encodeValue(captureID string, created time.Time, payload []byte) ([]byte, error) {
	if len(captureID) > math.MaxUint16 {
		return nil, fmt.Errorf("capture id too long (%d bytes)", len(captureID))
	}
	value := make([]byte, valueHeader+len(captureID)+len(payload))
	binary.BigEndian.PutUint64(value[0:8], uint64(created.UnixNano()))
	binary.BigEndian.PutUint16(value[8:10], uint16(len(captureID)))
	copy(value[valueHeader:], captureID)
	copy(value[valueHeader+len(captureID):], payload)
	return value, nil
}

func decodeHeader(value []byte) (time.Time, int, int, error) {
	if len(value) < valueHeader {
		return time.Time{}, 0, 0, errors.New("truncated item value")
	}
	created := time.Unix(0, int64(binary.BigEndian.Uint64(value[0:8]))).UTC()
	idLen := int(binary.BigEndian.Uint16(value[8:10]))
	if len(value) < valueHeader+idLen {
		return time.Time{}, 0, 0, errors.New("truncated capture id")
	}
	return created, idLen, len(value) - valueHeader - idLen, nil
}

// decodeValue copies out of the iterator buffer, which Pebble reuses.
func decodeValue(value []byte) (Item, error) {
	created, idLen, payloadLen, err := decodeHeader(value)
	if err != nil {
		return Item{}, err
	}
	payload := make([]byte, payloadLen)
	copy(payload, value[valueHeader+idLen:])
	return Item{
		CaptureID: string(value[valueHeader : valueHeader+idLen]),
		Payload:   payload,
		CreatedAt: created,
	}, nil
}
