package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, capture_id, payload, created_at"

// Put appends a payload inside one transaction after checking capacity limits.
func (s *Store) Put(ctx context.Context, captureID string, payload []byte) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storageErr("put", ErrClosed)
	}
	ctx = ensureContext(ctx)
	s.putMu.Lock()
	defer s.putMu.Unlock()

	var id int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin put tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var (
			pending      int
			pendingBytes int64
		)
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1), COALESCE(SUM(payload_size), 0) FROM pending_items",
		).Scan(&pending, &pendingBytes); err != nil {
			return fmt.Errorf("count pending items: %w", err)
		}
		if err := s.limits.check(s.dir, pending, pendingBytes, len(payload)); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO pending_items (capture_id, payload, payload_size, created_at) VALUES (?, ?, ?, ?)",
			captureID,
			payload,
			len(payload),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, storageErr("put", err)
	}
	return id, nil
}

// ListAll returns every pending item ordered by ID.
func (s *Store) ListAll(ctx context.Context) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, storageErr("list", ErrClosed)
	}
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT "+itemColumns+" FROM pending_items ORDER BY id")
	if err != nil {
		return nil, storageErr("list", fmt.Errorf("query items: %w", err))
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storageErr("list", fmt.Errorf("scan item: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return items, nil
}

// Remove deletes one item. Removing an unknown ID is not an error.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if s == nil || s.db == nil {
		return storageErr("remove", ErrClosed)
	}
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM pending_items WHERE id = ?", id); err != nil {
		return storageErr("remove", fmt.Errorf("delete item %d: %w", id, err))
	}
	return nil
}

// ClearThrough deletes every item with an ID up to and including id.
func (s *Store) ClearThrough(ctx context.Context, id int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storageErr("clear", ErrClosed)
	}
	res, err := s.execWithRetry(ctx, "DELETE FROM pending_items WHERE id <= ?", id)
	if err != nil {
		return 0, storageErr("clear", fmt.Errorf("delete through %d: %w", id, err))
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear", err)
	}
	return removed, nil
}

// Clear deletes every pending item.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storageErr("clear", ErrClosed)
	}
	res, err := s.execWithRetry(ctx, "DELETE FROM pending_items")
	if err != nil {
		return 0, storageErr("clear", fmt.Errorf("delete all: %w", err))
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear", err)
	}
	return removed, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (Item, error) {
	var (
		id         int64
		captureID  sql.NullString
		payload    []byte
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &captureID, &payload, &createdRaw); err != nil {
		return Item{}, err
	}
	item := Item{
		ID:        id,
		CaptureID: captureID.String,
		Payload:   payload,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	return item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
