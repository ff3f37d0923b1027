// Package server exposes the agent over HTTP. It is a thin adapter: each
// message request builds a fresh agent from the shared collaborators, replays
// the thread's stored history, streams the answer as plain text chunks, and
// lets the message logger persist the new turns.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ansari/internal/agent"
	"ansari/internal/config"
	"ansari/internal/llm"
	"ansari/internal/logging"
	"ansari/internal/store"
	"ansari/internal/tools"
)

// Server handles the /api/v2 thread endpoints.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	client   llm.Client
	registry *tools.Registry
	system   string
	log      *zap.SugaredLogger
}

// New wires the server from shared collaborators. system is the rendered
// system prompt handed to every per-request agent.
func New(cfg *config.Config, st *store.Store, client llm.Client, registry *tools.Registry, system string) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		client:   client,
		registry: registry,
		system:   system,
		log:      logging.Get(logging.CategoryServer),
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v2/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/v2/threads", s.handleListThreads)
	mux.HandleFunc("GET /api/v2/threads/{id}", s.handleGetThread)
	mux.HandleFunc("DELETE /api/v2/threads/{id}", s.handleDeleteThread)
	mux.HandleFunc("POST /api/v2/threads/{id}/messages", s.handleSendMessage)
	return s.cors(mux)
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infof("listening on %s", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// cors applies the configured origin allow-list. Requests without an Origin
// header pass through untouched.
func (s *Server) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.cfg.Server.AllowedOrigins))
	for _, o := range s.cfg.Server.AllowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createThreadRequest struct {
	Name string `json:"name"`
}

type threadResponse struct {
	ThreadID  string    `json:"thread_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.Body != nil {
		// An empty body creates an unnamed thread.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	thread, err := s.store.CreateThread(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, threadResponse{ThreadID: thread.ID, Name: thread.Name, CreatedAt: thread.CreatedAt})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadResponse{ThreadID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type messageView struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`
}

type threadHistoryResponse struct {
	ThreadID string        `json:"thread_id"`
	Name     string        `json:"name,omitempty"`
	Messages []messageView `json:"messages"`
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	thread, err := s.store.GetThread(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	history, err := s.store.History(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	resp := threadHistoryResponse{ThreadID: thread.ID, Name: thread.Name, Messages: make([]messageView, 0, len(history))}
	for _, m := range history {
		resp.Messages = append(resp.Messages, messageView{
			Role:     string(m.Role),
			Content:  m.PlainText(),
			ToolName: m.ToolName,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteThread(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetThread(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("body must be JSON with a non-empty content field"))
		return
	}

	history, err := s.store.History(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	a := agent.New(s.cfg, s.client, s.registry, s.system, s.store.Logger(id))
	a.Seed(history)
	out, errc := a.ProcessInput(r.Context(), req.Content)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)

	wrote := false
	for out != nil || errc != nil {
		select {
		case chunk, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			if _, err := w.Write([]byte(chunk)); err != nil {
				s.log.Debugf("thread %s: client went away: %v", id, err)
				return
			}
			wrote = true
			if flusher != nil {
				flusher.Flush()
			}
		case err, ok := <-errc:
			if !ok {
				errc = nil
				continue
			}
			if err != nil {
				s.log.Errorf("thread %s: processing failed: %v", id, err)
				if !wrote {
					s.writeError(w, http.StatusBadGateway, errors.New("processing failed"))
				}
				return
			}
		}
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrThreadNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("failed to encode response: %v", err)
	}
}
