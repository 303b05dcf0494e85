package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"shutterbox/internal/config"
)

// Stats returns the pending count, total payload size and oldest item time.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, storageErr("stats", ErrClosed)
	}
	ctx = ensureContext(ctx)
	var (
		stats     Stats
		oldestRaw sql.NullString
	)
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(payload_size), 0), MIN(created_at) FROM pending_items")
	if err := row.Scan(&stats.Pending, &stats.PayloadBytes, &oldestRaw); err != nil {
		return Stats{}, storageErr("stats", fmt.Errorf("queue stats: %w", err))
	}
	if oldestRaw.Valid {
		if oldest, err := parseTimeString(oldestRaw.String); err == nil {
			stats.OldestAt = oldest
		}
	}
	return stats, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{
		Backend:       config.BackendSQLite,
		DBPath:        s.path,
		SchemaVersion: strconv.Itoa(schemaVersion),
	}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM pending_items").Scan(&health.TotalItems); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count pending items: %w", err)
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	if free, err := freeBytes(s.dir); err == nil {
		health.FreeBytes = free
	}
	return health, nil
}
