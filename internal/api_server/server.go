package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tracklane/catalog-importer/internal/auth"
	"github.com/tracklane/catalog-importer/internal/config"
	handlers "github.com/tracklane/catalog-importer/internal/handlers/v1alpha1"
	"github.com/tracklane/catalog-importer/internal/service"
	"github.com/tracklane/catalog-importer/internal/store"
	"github.com/tracklane/catalog-importer/pkg/metrics"
	"github.com/tracklane/catalog-importer/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
}

// New returns a new instance of the catalog-importer server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	authenticator, err := auth.NewHeaderAuthenticator()
	if err != nil {
		return err
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		authenticator.Authenticator,
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	importSrv := service.NewImportService(s.store, s.cfg)
	h := handlers.NewImportHandler(importSrv)

	router.Get("/health", h.Health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1/imports", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Post("/preview", h.PreviewMapping)
		r.Get("/active", h.GetActiveSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.DeleteSession)
			r.Post("/advance", h.AdvanceBatch)
			r.Post("/pause", h.PauseSession)
			r.Post("/resume", h.ResumeSession)
			r.Post("/cancel", h.CancelSession)
			r.Post("/retry", h.RetryFailedRows)
			r.Get("/progress", h.GetProgress)
			r.Get("/stats", h.GetStats)
			r.Get("/failed-rows", h.ListFailedRows)
		})
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
