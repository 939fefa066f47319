package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/shelfradar/internal/logging"
	"github.com/elonfeng/shelfradar/internal/store"
	"github.com/elonfeng/shelfradar/pkg/catalog"
	"github.com/elonfeng/shelfradar/pkg/discovery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recomputer runs an on-demand popularity recompute.
type Recomputer interface {
	Recompute(ctx context.Context, windowDays int) (*catalog.ScoreRun, error)
}

// Options configures the HTTP server.
type Options struct {
	Port               int
	DefaultLimit       int
	MaxLimit           int
	RecomputePerMinute int
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	discovery *discovery.Service
	scorer    Recomputer
	opts      Options
	log       zerolog.Logger
}

// New creates a new HTTP server.
func New(s store.Store, svc *discovery.Service, scorer Recomputer, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = min(20, opts.MaxLimit)
	}
	if opts.RecomputePerMinute <= 0 {
		opts.RecomputePerMinute = 2
	}
	return &Server{
		store:     s,
		discovery: svc,
		scorer:    scorer,
		opts:      opts,
		log:       logging.With().Str("component", "server").Logger(),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/views", s.handleViews)
		r.Get("/views/{slug}/books", s.handleViewBooks)
		r.Get("/books/popular", s.handlePopular)
		r.Post("/events", s.handleEvent)

		r.Route("/users/{userID}/blocks", func(r chi.Router) {
			r.Get("/", s.handleListBlocks)
			r.Post("/", s.handleAddBlock)
			r.Delete("/{blockType}/{blockID}", s.handleRemoveBlock)
		})

		r.With(httprate.LimitByIP(s.opts.RecomputePerMinute, time.Minute)).
			Post("/admin/popularity/recompute", s.handleRecompute)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("shelfradar server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	views, err := s.store.ListViews(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if views == nil {
		views = []catalog.View{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  views,
		"count": len(views),
	})
}

func (s *Server) handleViewBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, err := optionalID(q.Get("user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid user_id"))
		return
	}
	limit, err := s.limit(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	page, err := s.discovery.Discover(r.Context(), chi.URLParam(r, "slug"), userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	limit, err := s.limit(r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	books, err := s.store.ListPopularBooks(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if books == nil {
		books = []catalog.Book{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  books,
		"count": len(books),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID int64             `json:"book_id"`
		UserID int64             `json:"user_id"`
		Type   catalog.EventType `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	e := &catalog.Event{BookID: req.BookID, UserID: req.UserID, Type: req.Type}
	if err := s.store.RecordEvent(r.Context(), e); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid user id"))
		return
	}
	blocks, err := s.store.ListBlocks(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if blocks == nil {
		blocks = []catalog.Block{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  blocks,
		"count": len(blocks),
	})
}

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid user id"))
		return
	}
	var b catalog.Block
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	b.UserID = userID

	if err := s.store.AddBlock(r.Context(), &b); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid user id"))
		return
	}
	blockID, err := pathID(r, "blockID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid block id"))
		return
	}
	blockType := catalog.BlockType(chi.URLParam(r, "blockType"))

	if err := s.store.RemoveBlock(r.Context(), userID, blockType, blockID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	window := 0
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("window must be a positive number of days"))
			return
		}
		window = n
	}

	run, err := s.scorer.Recompute(r.Context(), window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) limit(raw string) (int, error) {
	if raw == "" {
		return s.opts.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return min(n, s.opts.MaxLimit), nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func optionalID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
