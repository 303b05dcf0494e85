package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"shutterbox/internal/api"
	"shutterbox/internal/config"
	"shutterbox/internal/logging"
)

// maxCaptureBytes bounds a single HTTP capture upload.
const maxCaptureBytes = 32 << 20

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		queueSvc: api.NewQueueService(d.store),
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(authMiddleware(cfg.Paths.APIToken))
	protected.HandleFunc("/capture", srv.handleCapture).Methods(http.MethodPost)
	protected.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)
	protected.HandleFunc("/queue", srv.handleQueue).Methods(http.MethodGet)
	protected.HandleFunc("/flush", srv.handleFlush).Methods(http.MethodPost)

	if cfg.Metrics.Enabled && d.metrics != nil {
		router.Handle(cfg.Metrics.Path, d.metrics.Handler()).Methods(http.MethodGet)
	}
	// Subrouters answer method mismatches themselves, so both need the handler.
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	router.MethodNotAllowedHandler = methodNotAllowed
	protected.MethodNotAllowedHandler = methodNotAllowed

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// address returns the bound listener address, or "" when not listening.
func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleCapture accepts either a multipart form with a "photo" part or the
// raw image as the request body.
func (s *apiServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCaptureBytes)
	payload, err := readCapturePayload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "capture exceeds upload limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.daemon.Capture(r.Context(), payload)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.WithContext(r.Context(), s.logger).Debug("capture accepted over http",
		logging.String(logging.FieldCaptureID, id),
		logging.Bytes(len(payload)),
	)
	s.writeJSON(w, http.StatusAccepted, api.CaptureResponse{CaptureID: id, Bytes: len(payload)})
}

func readCapturePayload(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("photo")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, errors.New("missing photo field")
		}
		defer file.Close()
		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			return nil, errors.New("photo is empty")
		}
		return payload, nil
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, errors.New("request body is empty")
	}
	return payload, nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toAPIStatus(s.daemon.Status(r.Context())))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.queueSvc.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []api.PendingItem{}
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

// handleFlush runs a flush synchronously when ?wait=1, otherwise queues one.
func (s *apiServer) handleFlush(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait")
	if wait == "1" || strings.EqualFold(wait, "true") {
		result, err := s.daemon.FlushNow(r.Context())
		s.writeJSON(w, http.StatusOK, api.FromFlushResult(result, err))
		return
	}
	if !s.daemon.RequestFlush(SourceManual) {
		s.writeError(w, http.StatusServiceUnavailable, "flush request not accepted")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func toAPIStatus(status Status) api.DaemonStatus {
	return api.DaemonStatus{
		State:        string(status.State),
		Running:      status.Running,
		PID:          status.PID,
		Flushing:     status.Flushing,
		Online:       status.Online,
		Backend:      status.Backend,
		AckMode:      status.AckMode,
		SinkURL:      status.SinkURL,
		Schedule:     status.Schedule,
		Netlink:      status.Netlink,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Queue:        api.FromStats(status.Pending),
		Outbox:       api.FromCounters(status.Counters),
		LastError:    status.LastError,
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
