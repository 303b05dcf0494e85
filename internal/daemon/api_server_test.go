package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"shutterbox/internal/api"
	"shutterbox/internal/config"
	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
	"shutterbox/internal/outbox"
	"shutterbox/internal/testsupport"
)

type apiFixture struct {
	daemon *Daemon
	sink   *testsupport.FakeSink
	base   string
	token  string
}

func startAPIFixture(t *testing.T, mutate func(cfg *config.Config)) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	sink := &testsupport.FakeSink{}
	rec := metrics.New()
	mgr := outbox.New(store, sink, outbox.WithMetrics(rec))
	d, err := New(cfg, store, mgr, sink, logging.NewNop(), WithMetrics(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return &apiFixture{daemon: d, sink: sink, base: "http://" + d.api.address(), token: cfg.Paths.APIToken}
}

func (f *apiFixture) do(t *testing.T, method, path, contentType string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.base+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func waitForDeliveries(t *testing.T, sink *testsupport.FakeSink, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(sink.Delivered()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d deliveries, got %d", n, len(sink.Delivered()))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAPICaptureMultipart(t *testing.T) {
	f := startAPIFixture(t, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write([]byte("jpeg-bytes"))
	_ = writer.Close()

	resp := f.do(t, http.MethodPost, "/api/capture", writer.FormDataContentType(), &body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var out api.CaptureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CaptureID == "" || out.Bytes != len("jpeg-bytes") {
		t.Fatalf("unexpected response %+v", out)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
	waitForDeliveries(t, f.sink, 1)
	if got := f.sink.Delivered()[0]; got != "jpeg-bytes" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestAPICaptureRawBodyAndValidation(t *testing.T) {
	f := startAPIFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/capture", "image/jpeg", bytes.NewReader([]byte("raw")))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for raw body, got %d", resp.StatusCode)
	}
	waitForDeliveries(t, f.sink, 1)

	resp = f.do(t, http.MethodPost, "/api/capture", "image/jpeg", bytes.NewReader(nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", resp.StatusCode)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("caption", "no photo")
	_ = writer.Close()
	resp = f.do(t, http.MethodPost, "/api/capture", writer.FormDataContentType(), &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing photo, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodGet, "/api/capture", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestAPIMethodMismatchOnEveryRoute(t *testing.T) {
	f := startAPIFixture(t, nil)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/capture"},
		{http.MethodPost, "/api/status"},
		{http.MethodDelete, "/api/queue"},
		{http.MethodGet, "/api/flush"},
	}
	for _, tc := range cases {
		resp := f.do(t, tc.method, tc.path, "", nil)
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}

	resp := f.do(t, http.MethodGet, "/api/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", resp.StatusCode)
	}
}

func TestAPIStatusQueueAndFlush(t *testing.T) {
	f := startAPIFixture(t, nil)
	testsupport.MustPut(t, f.daemon.store, "A")
	testsupport.MustPut(t, f.daemon.store, "B")

	resp := f.do(t, http.MethodGet, "/api/queue", "", nil)
	var list api.QueueListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if len(list.Items) != 2 || list.Items[0].Bytes != 1 {
		t.Fatalf("unexpected queue %+v", list)
	}

	resp = f.do(t, http.MethodGet, "/api/status", "", nil)
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.State != string(StateReady) || status.Queue.Pending != 2 {
		t.Fatalf("unexpected status %+v", status)
	}

	resp = f.do(t, http.MethodPost, "/api/flush?wait=1", "", nil)
	var flush api.FlushResponse
	if err := json.NewDecoder(resp.Body).Decode(&flush); err != nil {
		t.Fatalf("decode flush: %v", err)
	}
	if flush.Delivered != 2 || flush.Remaining != 0 || flush.Error != "" {
		t.Fatalf("unexpected flush response %+v", flush)
	}

	resp = f.do(t, http.MethodPost, "/api/flush", "", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for queued flush, got %d", resp.StatusCode)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := startAPIFixture(t, func(cfg *config.Config) { cfg.Paths.APIToken = "s3cret" })

	resp, err := http.Get(f.base + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	if resp := f.do(t, http.MethodGet, "/api/status", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestAPIMetricsEndpoint(t *testing.T) {
	f := startAPIFixture(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Path = "/metrics"
	})
	resp := f.do(t, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("shutterbox_pending_items")) {
		t.Fatalf("metrics output missing pending gauge:\n%s", body)
	}
}

func TestNewAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	srv, err := newAPIServer(cfg, &Daemon{}, nil)
	if err != nil || srv != nil {
		t.Fatalf("expected nil server, got (%v, %v)", srv, err)
	}
	if srv.address() != "" {
		t.Fatal("nil server must report empty address")
	}
	srv.stop()
}
