package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/caffeineduck/rplay/examples"
	"github.com/caffeineduck/rplay/playground"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for R execution",
	Long: `Start an HTTP server that provides REST endpoints for R execution.

Endpoints:
  POST   /execute                    Execute code in a fresh session
  POST   /sessions                   Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec         Execute in session (state persists)
  POST   /sessions/{id}/cancel       Cancel the running execution
  POST   /sessions/{id}/reset        Remove all variables
  GET    /sessions/{id}/vars/{name}  Read a variable as JSON
  PUT    /sessions/{id}/vars/{name}  Bind a JSON value to a variable
  DELETE /sessions/{id}              Close session
  GET    /examples                   List built-in examples
  GET    /examples/{name}            Show one example
  GET    /health                     Health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Address to listen on (default :8080)")
	serveCmd.Flags().Duration("session-ttl", 0, "Close sessions idle for longer than this (default 30m)")
	serveCmd.Flags().Int("max-sessions", 0, "Maximum concurrent sessions (default 16)")
	rootCmd.AddCommand(serveCmd)
}

// playgroundFactory returns an initialized playground.
type playgroundFactory func(ctx context.Context) (*playground.Playground, error)

var (
	errTooManySessions = errors.New("too many sessions")
	errServerClosed    = errors.New("server shutting down")
)

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.Mutex
	ttl      time.Duration
	max      int
	pending  int // slots reserved by creates still starting R
	stop     chan struct{}
	stopOnce sync.Once
}

type serverSession struct {
	pg       *playground.Playground
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, maxSessions int) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		max:      maxSessions,
		stop:     make(chan struct{}),
	}
	go sm.cleanup(time.Minute)
	return sm
}

func (sm *sessionManager) create(ctx context.Context, factory playgroundFactory) (string, error) {
	// The slot stays reserved while R starts.
	sm.mu.Lock()
	if sm.max > 0 && len(sm.sessions)+sm.pending >= sm.max {
		sm.mu.Unlock()
		return "", errTooManySessions
	}
	sm.pending++
	sm.mu.Unlock()

	pg, err := factory(ctx)

	sm.mu.Lock()
	sm.pending--
	if err != nil {
		sm.mu.Unlock()
		return "", err
	}
	select {
	case <-sm.stop:
		sm.mu.Unlock()
		pg.Close()
		return "", errServerClosed
	default:
	}
	id := uuid.NewString()
	sm.sessions[id] = &serverSession{
		pg:       pg,
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()
	return id, nil
}

func (sm *sessionManager) get(id string) (*playground.Playground, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.pg, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if ok {
		ss.pg.Close()
	}
	return ok
}

func (sm *sessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

func (sm *sessionManager) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case now := <-ticker.C:
			sm.expire(now)
		}
	}
}

// expire closes sessions idle since before now minus the TTL.
func (sm *sessionManager) expire(now time.Time) int {
	var stale []*playground.Playground

	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			stale = append(stale, ss.pg)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, pg := range stale {
		pg.Close()
	}
	return len(stale)
}

func (sm *sessionManager) closeAll() {
	sm.stopOnce.Do(func() { close(sm.stop) })

	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()

	for _, ss := range all {
		ss.pg.Close()
	}
}

type executeRequest struct {
	Code    string `json:"code"`
	Timeout string `json:"timeout,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type variableRequest struct {
	Value any `json:"value"`
}

type variableResponse struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type server struct {
	factory  playgroundFactory
	sessions *sessionManager
	logger   *log.Logger
}

func newServer(factory playgroundFactory, sessions *sessionManager, logger *log.Logger) *server {
	return &server{factory: factory, sessions: sessions, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/exec", s.handleSessionExec)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("GET /sessions/{id}/vars/{name}", s.handleGetVariable)
	mux.HandleFunc("PUT /sessions/{id}/vars/{name}", s.handleSetVariable)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /examples", s.handleListExamples)
	mux.HandleFunc("GET /examples/{name}", s.handleGetExample)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeExecute(w http.ResponseWriter, r *http.Request) (executeRequest, bool) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// withTimeout applies a request's optional timeout to ctx.
func withTimeout(ctx context.Context, raw string) (context.Context, context.CancelFunc, error) {
	if raw == "" {
		return ctx, func() {}, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return ctx, nil, fmt.Errorf("invalid timeout %q", raw)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, cancel, nil
}

// resultStatus maps a run result to an HTTP status. Failures raised by R
// code are still 200; the body reports them.
func resultStatus(res playground.Result) int {
	switch {
	case errors.Is(res.Err, playground.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(res.Err, playground.ErrBusy):
		return http.StatusConflict
	case errors.Is(res.Err, playground.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func (s *server) run(w http.ResponseWriter, r *http.Request, pg *playground.Playground, req executeRequest) {
	ctx, cancel, err := withTimeout(r.Context(), req.Timeout)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cancel()

	res := pg.Run(ctx, req.Code)
	writeJSON(w, resultStatus(res), res)
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExecute(w, r)
	if !ok {
		return
	}

	pg, err := s.factory(r.Context())
	if err != nil {
		s.logger.Error("start interpreter", "err", err)
		http.Error(w, fmt.Sprintf("failed to start interpreter: %v", err), http.StatusInternalServerError)
		return
	}
	defer pg.Close()

	s.run(w, r, pg, req)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.create(r.Context(), s.factory)
	switch {
	case errors.Is(err, errTooManySessions):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	case errors.Is(err, errServerClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error("create session", "err", err)
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*playground.Playground, bool) {
	pg, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return pg, ok
}

func (s *server) handleSessionExec(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.session(w, r)
	if !ok {
		return
	}
	req, ok := decodeExecute(w, r)
	if !ok {
		return
	}

	// A cancelled or timed-out run leaves the playground without an
	// interpreter; start a new one so the session stays usable.
	if !pg.Ready() {
		if err := pg.Initialize(r.Context()); err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
	}
	s.run(w, r, pg, req)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.session(w, r)
	if !ok {
		return
	}
	pg.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := pg.Reset(r.Context()); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, playground.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, playground.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.session(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	value, err := pg.LoadVariable(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	if value == nil {
		http.Error(w, fmt.Sprintf("variable %q is not defined", name), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, variableResponse{Name: name, Value: value})
}

func (s *server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	pg, ok := s.session(w, r)
	if !ok {
		return
	}

	var req variableRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if !pg.LoadData(r.Context(), r.PathValue("name"), req.Value) {
		http.Error(w, "failed to set variable", http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.close(r.PathValue("id")) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListExamples(w http.ResponseWriter, r *http.Request) {
	list, err := examples.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleGetExample(w http.ResponseWriter, r *http.Request) {
	ex, ok := examples.Get(r.PathValue("name"))
	if !ok {
		http.Error(w, "example not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	flags := cmd.Flags()
	if flags.Changed("addr") {
		rt.cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("session-ttl") {
		ttl, _ := flags.GetDuration("session-ttl")
		rt.cfg.Server.RawSessionTTL = ttl.String()
	}
	if flags.Changed("max-sessions") {
		rt.cfg.Server.MaxSessions, _ = flags.GetInt("max-sessions")
	}

	sessions := newSessionManager(rt.cfg.SessionTTL(), rt.cfg.MaxSessions())
	defer sessions.closeAll()

	srv := newServer(rt.newPlayground, sessions, rt.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	httpServer := &http.Server{
		Addr:              rt.cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	rt.logger.Info("server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
