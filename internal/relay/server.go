package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"shutterbox/internal/config"
	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
)

// Forward outcomes recorded in metrics.
const (
	resultForwarded   = "forwarded"
	resultBadRequest  = "bad_request"
	resultTooLarge    = "too_large"
	resultRateLimited = "rate_limited"
	resultUpstream    = "upstream_error"
)

// Server forwards uploads from the daemon to Telegram.
type Server struct {
	bind        string
	maxUpload   int64
	metricsPath string
	logger      *slog.Logger
	metrics     *metrics.Recorder
	limiter     *rate.Limiter
	telegram    *telegramClient

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records forward outcomes and serves them on the metrics path.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = rec }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a relay from the [relay] section. Credentials must already be
// present; see config.ValidateRelayCredentials.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("relay requires config")
	}
	if err := cfg.ValidateRelayCredentials(); err != nil {
		return nil, err
	}
	limit := rate.Limit(cfg.Relay.RatePerSecond)
	if cfg.Relay.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	s := &Server{
		bind:      cfg.Relay.Bind,
		maxUpload: int64(cfg.Relay.MaxUploadMB) << 20,
		limiter:   rate.NewLimiter(limit, cfg.Relay.Burst),
		telegram: &telegramClient{
			baseURL: cfg.Relay.APIBaseURL,
			token:   cfg.Relay.BotToken,
			chatID:  cfg.Relay.ChatID,
			http:    &http.Client{Timeout: cfg.RelayTimeout()},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Metrics.Enabled {
		s.metricsPath = cfg.Metrics.Path
	}
	s.logger = logging.NewComponentLogger(s.logger, "relay")
	return s, nil
}

// Handler returns the relay routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	}).Methods(http.MethodGet)
	if s.metricsPath != "" && s.metrics != nil {
		router.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}

// Start binds the listener and serves in the background until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("relay listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server error", logging.Error(err))
		}
	}()
	s.logger.Info("relay listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "relay_listening"),
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight forwards.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, _, err := r.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, resultTooLarge, "upload exceeds limit")
			return
		}
		s.reject(w, http.StatusBadRequest, resultBadRequest, "missing photo")
		return
	}
	defer file.Close()
	payload, err := io.ReadAll(file)
	if err != nil || len(payload) == 0 {
		s.reject(w, http.StatusBadRequest, resultBadRequest, "empty photo")
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.reject(w, http.StatusTooManyRequests, resultRateLimited, "rate limited")
		return
	}

	if err := s.telegram.sendPhoto(r.Context(), payload); err != nil {
		logging.WarnWithContext(s.logger, "forward to telegram failed", "relay_forward_failed",
			logging.Error(err),
			logging.Bytes(len(payload)),
			logging.String(logging.FieldImpact, "the daemon keeps the photo queued and retries later"),
			logging.String(logging.FieldErrorHint, "check relay.bot_token, relay.chat_id and network access"),
		)
		s.reject(w, http.StatusBadGateway, resultUpstream, "messaging API error")
		return
	}

	s.metrics.RelayForward(resultForwarded)
	s.logger.Info("photo forwarded",
		logging.Bytes(len(payload)),
		logging.String(logging.FieldEventType, "relay_forwarded"),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "sent\n")
}

func (s *Server) reject(w http.ResponseWriter, status int, result, message string) {
	s.metrics.RelayForward(result)
	s.logger.Debug("relay request rejected",
		logging.Int("status", status),
		logging.String("reason", message),
	)
	http.Error(w, message, status)
}
