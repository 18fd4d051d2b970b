// Package api provides the HTTP REST API server for scripdesk.
//
// It exposes endpoints for symbol resolution, quotes, announcements,
// filing lookup with period matching, document text extraction,
// document Q&A, and per-user watchlists and portfolios.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/seenimoa/scripdesk/internal/config"
	"github.com/seenimoa/scripdesk/internal/datasource"
	"github.com/seenimoa/scripdesk/internal/docs"
	"github.com/seenimoa/scripdesk/internal/llm"
	"github.com/seenimoa/scripdesk/internal/orchestrator"
	"github.com/seenimoa/scripdesk/internal/resolver"
	"github.com/seenimoa/scripdesk/internal/store"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	log    logrus.FieldLogger
	store  *store.Store
	orch   *orchestrator.Orchestrator
	docs   *docs.Service
	llm    *llm.Client // nil when no Gemini key is configured
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, log logrus.FieldLogger) (*Server, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sessionTTL := time.Duration(cfg.Providers.SessionTTLSec) * time.Second
	bse := datasource.NewBSE()
	nse := datasource.NewNSE(datasource.NewSession("https://www.nseindia.com", sessionTTL))
	scr := datasource.NewScreener()
	yahoo := datasource.NewYahoo()

	res := resolver.New(bse, nse, st, log,
		resolver.WithStrategyTimeout(time.Duration(cfg.Providers.SearchTimeoutSec)*time.Second))
	orch := orchestrator.New(res, bse, nse, scr, yahoo, log,
		orchestrator.WithStepTimeout(time.Duration(cfg.Providers.ListTimeoutSec)*time.Second),
		orchestrator.WithAnnouncementLimit(cfg.Providers.AnnouncementsLimit))

	var ask *llm.Client
	if cfg.LLM.GeminiKey != "" {
		ask, err = llm.New(cfg.LLM.GeminiKey, log, llm.WithModel(cfg.LLM.Model))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("LLM setup failed: %w", err)
		}
	}

	docsSvc := docs.New(log, cfg.Docs.MaxPages, time.Duration(cfg.Docs.FetchTimeoutSec)*time.Second)
	return newServer(cfg, log, st, orch, docsSvc, ask), nil
}

// newServer assembles a server from pre-built components.
func newServer(cfg *config.Config, log logrus.FieldLogger, st *store.Store, orch *orchestrator.Orchestrator, docsSvc *docs.Service, ask *llm.Client) *Server {
	srv := &Server{
		cfg:   cfg,
		log:   log,
		store: st,
		orch:  orch,
		docs:  docsSvc,
		llm:   ask,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close releases the server's store.
func (s *Server) Close() error {
	return s.store.Close()
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status/keys", s.handleKeyStatus)

		// Auth
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Market data
		r.Get("/search", s.handleSearch)
		r.Get("/quote/{symbol}", s.handleQuote)
		r.Post("/prices", s.handlePrices)
		r.Get("/announcements", s.handleAnnouncements)

		// Documents
		r.Get("/docs/{symbol}", s.handleBestDoc)
		r.Get("/docs/{symbol}/all", s.handleAllDocs)
		r.Post("/docs/extract", s.handleExtract)

		// Document Q&A
		r.Post("/ask", s.handleAsk)

		// Per-user resources
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/me", s.handleMe)

			r.Get("/watchlist", s.handleWatchlist)
			r.Post("/watchlist", s.handleWatchlistAdd)
			r.Delete("/watchlist/{symbol}", s.handleWatchlistRemove)
			r.Put("/watchlist/order", s.handleWatchlistReorder)

			r.Get("/portfolio", s.handlePortfolio)
			r.Post("/portfolio", s.handlePortfolioAdd)
			r.Put("/portfolio/{id}", s.handlePortfolioUpdate)
			r.Delete("/portfolio/{id}", s.handlePortfolioRemove)
		})
	})

	return r
}

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":        "ok",
			"version":       "dev",
			"market_status": marketStatus(),
			"time_ist":      utils.NowIST().Format("02-Jan-2006 15:04:05"),
		},
	})
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}

func marketStatus() string {
	if utils.IsMarketOpen() {
		return "open"
	}
	return "closed"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
