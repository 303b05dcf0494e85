package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shutterbox/internal/metrics"
)

func TestRecorderCountsAndServes(t *testing.T) {
	rec := metrics.New()
	rec.Capture("queued")
	rec.Capture("queued")
	rec.DeliveryAttempt(metrics.PathFlush, false)
	rec.Flush("stopped")
	rec.StorageError("put")
	rec.RegisterPending(func() float64 { return 3 })
	rec.RegisterPending(func() float64 { return 99 })

	server := httptest.NewServer(rec.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`shutterbox_captures_total{outcome="queued"} 2`,
		`shutterbox_delivery_attempts_total{path="flush",result="failure"} 1`,
		`shutterbox_flushes_total{result="stopped"} 1`,
		`shutterbox_storage_errors_total{op="put"} 1`,
		`shutterbox_pending_items 3`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *metrics.Recorder
	rec.Capture("delivered")
	rec.DeliveryAttempt(metrics.PathSubmit, true)
	rec.Flush("drained")
	rec.StorageError("list")
	rec.RelayForward("ok")
	rec.RegisterPending(func() float64 { return 1 })
	if rec.Registry() != nil {
		t.Fatal("expected nil registry from nil recorder")
	}
}

func TestRelayForwardCounter(t *testing.T) {
	rec := metrics.New()
	rec.RelayForward("ok")
	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "shutterbox_relay_forwards_total" {
			continue
		}
		if len(family.GetMetric()) != 1 || family.GetMetric()[0].GetCounter().GetValue() != 1 {
			t.Fatalf("unexpected relay series %v", family)
		}
		return
	}
	t.Fatal("relay forward counter not gathered")
}
