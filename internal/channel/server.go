package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
	CallTimeout time.Duration
}

// DefaultServerConfig returns the transport defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:        "127.0.0.1:8642",
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		CallTimeout: 2 * time.Minute,
	}
}

type endpoint struct {
	ch  *MethodChannel
	hub *Hub
}

// Server exposes method channels over HTTP.
//
//	POST /v1/channels/{channel}/methods/{method}  JSON object of arguments
//	GET  /v1/channels/{channel}/events            server-sent events
//	GET  /health
type Server struct {
	cfg        ServerConfig
	router     *mux.Router
	httpServer *http.Server
	mu         sync.RWMutex
	endpoints  map[string]endpoint
	log        logrus.FieldLogger

	addrMu sync.Mutex
	addr   net.Addr
}

// NewServer creates a server with no channels registered.
func NewServer(cfg ServerConfig, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:       cfg,
		router:    mux.NewRouter(),
		endpoints: make(map[string]endpoint),
		log:       log.WithField("component", "http"),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/v1/channels/{channel}/methods/{method}", s.handleCall).Methods("POST")
	s.router.HandleFunc("/v1/channels/{channel}/events", s.handleEvents).Methods("GET")

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}
	return s
}

// Register exposes ch, with hub as its event source.
func (s *Server) Register(ch *MethodChannel, hub *Hub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ch.Name()] = endpoint{ch: ch, hub: hub}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("server starting")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}

func (s *Server) lookup(r *http.Request) (endpoint, bool) {
	name := mux.Vars(r)["channel"]
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[name]
	return ep, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.lookup(r)
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	method := mux.Vars(r)["method"]

	args, err := decodeArguments(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Reply{
			Status: StatusError,
			Error:  &ReplyError{Code: "bad_request", Message: err.Error()},
		})
		return
	}

	ctx := r.Context()
	if s.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
	}

	reply, err := ep.ch.Handle(ctx, NewMethodCall(method, args))
	switch {
	case errors.Is(err, ErrNoHandler):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	case err != nil:
		s.log.WithError(err).WithField("method", method).Warn("call aborted")
		return
	}

	status := http.StatusOK
	if reply.NotImplemented() {
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, reply)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.lookup(r)
	if !ok || ep.hub == nil {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := ep.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("event subscriber attached")
	defer log.Debug("event subscriber detached")

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				log.WithError(err).Debug("event write failed")
				return
			}
			flusher.Flush()
		}
	}
}

func decodeArguments(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

func writeEvent(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev.Arguments)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Method, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
