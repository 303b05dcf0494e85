package daemon

import (
	"testing"
	"time"
)

func TestNewSyncSchedulerEmptyExpression(t *testing.T) {
	if s := newSyncScheduler("  ", nil, nil); s != nil {
		t.Fatal("expected nil scheduler for empty expression")
	}
}

func TestSyncSchedulerNextTick(t *testing.T) {
	s := newSyncScheduler("*/15 * * * *", nil, nil)
	now := time.Date(2026, 5, 4, 10, 7, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	next, err := s.next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.After(now) || next.Sub(now) > 15*time.Minute {
		t.Fatalf("next tick %s not within 15 minutes after %s", next, now)
	}
	if next.Minute()%15 != 0 {
		t.Fatalf("next tick %s not on a quarter hour", next)
	}
}

func TestSyncSchedulerInvalidExpression(t *testing.T) {
	s := newSyncScheduler("not a cron", nil, nil)
	if _, err := s.next(); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}
