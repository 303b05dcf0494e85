package relay_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"shutterbox/internal/config"
	"shutterbox/internal/metrics"
	"shutterbox/internal/relay"
	"shutterbox/internal/testsupport"
)

type fakeTelegram struct {
	mu      sync.Mutex
	status  int
	body    string
	paths   []string
	chatIDs []string
	photos  [][]byte
	names   []string
	types   []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		f.chatIDs = append(f.chatIDs, r.FormValue("chat_id"))
		if file, header, err := r.FormFile("photo"); err == nil {
			data, _ := io.ReadAll(file)
			file.Close()
			f.photos = append(f.photos, data)
			f.names = append(f.names, header.Filename)
			f.types = append(f.types, header.Header.Get("Content-Type"))
		}
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	body := f.body
	if body == "" {
		body = `{"ok":true,"result":{}}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newRelay(t *testing.T, tg *fakeTelegram, mutate func(*config.Config)) (*relay.Server, *metrics.Recorder) {
	t.Helper()
	upstream := httptest.NewServer(tg)
	t.Cleanup(upstream.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Relay.BotToken = "123:abc"
	cfg.Relay.ChatID = "987"
	cfg.Relay.APIBaseURL = upstream.URL
	cfg.Relay.RatePerSecond = 0
	if mutate != nil {
		mutate(cfg)
	}
	rec := metrics.New()
	srv, err := relay.New(cfg, relay.WithMetrics(rec))
	if err != nil {
		t.Fatalf("relay.New failed: %v", err)
	}
	return srv, rec
}

func photoRequest(t *testing.T, field string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "capture.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/send", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestSendForwardsPhotoToTelegram(t *testing.T) {
	tg := &fakeTelegram{}
	srv, _ := newRelay(t, tg, nil)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, photoRequest(t, "photo", []byte("jpeg-bytes")))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	tg.mu.Lock()
	defer tg.mu.Unlock()
	if len(tg.paths) != 1 || tg.paths[0] != "/bot123:abc/sendPhoto" {
		t.Fatalf("unexpected upstream paths %v", tg.paths)
	}
	if tg.chatIDs[0] != "987" {
		t.Fatalf("expected chat id 987, got %q", tg.chatIDs[0])
	}
	if string(tg.photos[0]) != "jpeg-bytes" {
		t.Fatalf("photo bytes changed: %q", tg.photos[0])
	}
	if tg.names[0] != "photo.jpg" || tg.types[0] != "image/jpeg" {
		t.Fatalf("unexpected part metadata %q %q", tg.names[0], tg.types[0])
	}
}

func TestSendMissingPhotoIsBadRequest(t *testing.T) {
	tg := &fakeTelegram{}
	srv, _ := newRelay(t, tg, nil)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, photoRequest(t, "document", []byte("x")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader("raw")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", rr.Code)
	}
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if len(tg.paths) != 0 {
		t.Fatalf("rejected uploads must not reach telegram, got %v", tg.paths)
	}
}

func TestSendOversizeIsRejected(t *testing.T) {
	tg := &fakeTelegram{}
	srv, _ := newRelay(t, tg, func(cfg *config.Config) { cfg.Relay.MaxUploadMB = 1 })

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, photoRequest(t, "photo", bytes.Repeat([]byte{0x42}, 2<<20)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestSendUpstreamFailureIsBadGateway(t *testing.T) {
	tg := &fakeTelegram{status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`}
	srv, rec := newRelay(t, tg, nil)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, photoRequest(t, "photo", []byte("jpeg")))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	rec.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRR.Body.String(), `result="upstream_error"`) {
		t.Fatalf("expected upstream_error counter, got:\n%s", metricsRR.Body.String())
	}
}

func TestSendOKFalseIsBadGateway(t *testing.T) {
	tg := &fakeTelegram{body: `{"ok":false,"description":"flood"}`}
	srv, _ := newRelay(t, tg, nil)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, photoRequest(t, "photo", []byte("jpeg")))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for ok=false, got %d", rr.Code)
	}
}

func TestSendRateLimited(t *testing.T) {
	tg := &fakeTelegram{}
	srv, _ := newRelay(t, tg, func(cfg *config.Config) {
		cfg.Relay.RatePerSecond = 0.001
		cfg.Relay.Burst = 1
	})

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, photoRequest(t, "photo", []byte("a")))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first send to pass, got %d", first.Code)
	}
	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, photoRequest(t, "photo", []byte("b")))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Relay.BotToken = ""
	cfg.Relay.ChatID = ""
	if _, err := relay.New(cfg); err == nil {
		t.Fatal("expected missing credentials error")
	}
}

func TestStartServesOverTCP(t *testing.T) {
	tg := &fakeTelegram{}
	srv, _ := newRelay(t, tg, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}
}
