// Package server exposes the credential store and crawl trigger over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grez-lucas/sosh-invoices/internal/credentials"
	"github.com/grez-lucas/sosh-invoices/internal/logging"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var apiJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 10 * time.Second

// CredentialStore is the part of credentials.Store the API needs.
type CredentialStore interface {
	Fetch(ctx context.Context) (*credentials.Record, error)
	Upsert(ctx context.Context, rec credentials.Record) error
}

// Server serializes crawls: runs share the browser profile directory, so a
// second request while one is in flight gets 409.
type Server struct {
	store   CredentialStore
	scraper portal.InvoiceScraper
	logger  *zap.Logger

	crawling sync.Mutex
}

func New(store CredentialStore, scraper portal.InvoiceScraper, logger *zap.Logger) *Server {
	return &Server{store: store, scraper: scraper, logger: logger.Named("server")}
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)

	router.Get("/healthz", s.handleHealthz)
	router.Route("/api/sosh", func(r chi.Router) {
		r.Get("/credentials", s.handleGetCredentials)
		r.Post("/credentials", s.handlePostCredentials)
		r.Post("/crawl", s.handleCrawl)
	})
	return router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsView struct {
	Login      string `json:"login"`
	ContractID string `json:"contractId"`
}

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Fetch(r.Context())
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		respondJSON(w, http.StatusOK, map[string]any{"credentials": nil})
		return
	case err != nil:
		s.logger.Error("credentials_get_error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Unable to load credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"credentials": credentialsView{Login: rec.Login, ContractID: rec.ContractID},
	})
}

type credentialsInput struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	ContractID string `json:"contractId"`
}

func (s *Server) handlePostCredentials(w http.ResponseWriter, r *http.Request) {
	var in credentialsInput
	if err := apiJSON.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, credentials.ErrMissingField.Error())
		return
	}

	err := s.store.Upsert(r.Context(), credentials.Record{Login: in.Login, Password: in.Password, ContractID: in.ContractID})
	switch {
	case errors.Is(err, credentials.ErrMissingField):
		respondError(w, http.StatusBadRequest, credentials.ErrMissingField.Error())
		return
	case err != nil:
		s.logger.Error("credentials_post_error", zap.String("login", logging.Mask(in.Login)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Unable to save credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type crawlResponse struct {
	Saved         int      `json:"saved"`
	InvoicesFound int      `json:"invoicesFound"`
	Files         []string `json:"files"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if !s.crawling.TryLock() {
		respondError(w, http.StatusConflict, "A crawl is already running")
		return
	}
	defer s.crawling.Unlock()

	rec, err := s.store.Fetch(r.Context())
	switch {
	case errors.Is(err, credentials.ErrNotFound):
		respondError(w, http.StatusBadRequest, "No credentials stored")
		return
	case err != nil:
		s.logger.Error("crawl_error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Unable to load credentials")
		return
	}

	headless := true
	result, err := s.scraper.Run(r.Context(), portal.RunParams{
		Credentials: rec.Credentials(),
		Headless:    &headless,
	})
	if err != nil {
		s.logger.Error("crawl_error", zap.String("kind", portal.KindOf(err)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, portal.KindOf(err))
		return
	}

	respondJSON(w, http.StatusOK, crawlResponse{
		Saved:         len(result.Downloaded),
		InvoicesFound: result.DiscoveredCount,
		Files:         result.Files(),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = apiJSON.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
