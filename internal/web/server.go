// Package web provides the HTTP server and JSON handlers for the device
// custody service.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mitie-ops/custodia/internal/core"
)

// Options carries the server tunables that come from configuration.
type Options struct {
	// MaxUploadSize caps import request bodies in bytes.
	MaxUploadSize int64

	// RequestTimeout is the per-request middleware timeout.
	RequestTimeout time.Duration
}

// Server is the HTTP server for the custody application.
type Server struct {
	service   *core.Service
	router    *chi.Mux
	server    *http.Server
	maxUpload int64
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 16 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		service:   service,
		router:    chi.NewRouter(),
		maxUpload: opts.MaxUploadSize,
	}
	s.setupMiddleware(opts.RequestTimeout)
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(requestTimeout time.Duration) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(requestTimeout))
	s.router.Use(metricsMiddleware)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Custody events
		r.Post("/entregas", s.handleRecordDelivery)
		r.Post("/recepciones", s.handleRecordReceipt)
		r.Post("/incidencias", s.handleRecordIncident)

		// History and incident listings
		r.Get("/historial", s.handleHistory)
		r.Get("/historial/export", s.handleHistoryExport)
		r.Get("/incidencias", s.handleIncidents)

		// Administrative event access
		r.Get("/eventos/{id}", s.handleGetEvent)
		r.Put("/eventos/{id}", s.handleUpdateEvent)
		r.Post("/eventos/delete", s.handleDeleteEvents)

		// Signature codes
		r.Post("/firma/enviar", s.handleSendCode)
		r.Post("/firma/verificar", s.handleVerifyCode)

		// Bulk imports
		r.Post("/import/dispositivos", s.handleImportDevices)
		r.Post("/import/equipos", s.handleImportComputers)
		r.Post("/import/inventario", s.handleImportInventory)
		r.Post("/import/directorio", s.handleImportDirectory)

		// Computer records
		r.Post("/equipos", s.handleCreateComputer)
		r.Get("/equipos", s.handleListComputers)
		r.Get("/equipos/export", s.handleComputersExport)
		r.Put("/equipos/{id}", s.handleUpdateComputer)
		r.Post("/equipos/delete", s.handleDeleteComputers)

		// Phone inventory
		r.Post("/inventario", s.handleCreatePhone)
		r.Get("/inventario", s.handleListInventory)

		// GTD/SGPMR directory
		r.Post("/directorio", s.handleCreatePerson)
		r.Get("/directorio", s.handleListDirectory)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// StartWith uses a caller-built http.Server, letting main apply its
// configured timeouts.
func (s *Server) StartWith(srv *http.Server) error {
	srv.Handler = s.router
	s.server = srv
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
