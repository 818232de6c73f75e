package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cbodonnell/tabletop/pkg/api/handlers"
	"github.com/cbodonnell/tabletop/pkg/api/middleware"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Host string
	Port int
	TLS  *TLSConfig
	// Session serves the admin endpoints under /api.
	Session handlers.Session
	// AdminToken guards /api. Empty rejects every /api request.
	AdminToken string
	// WebSocket serves /ws.
	WebSocket http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewAPIServer creates a new http.Server for the game socket, health, metrics and admin endpoints
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:              net.JoinHostPort(opts.Host, fmt.Sprintf("%d", opts.Port)),
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// NewRouter builds the route table. Request logging and the admin token are applied to /api only.
func NewRouter(opts NewAPIServerOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Recovery)

	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", handlers.HandleHealthz()).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	if opts.Session != nil {
		api := r.PathPrefix("/api").Subrouter()
		api.Use(middleware.Logging, middleware.RequireToken(opts.AdminToken))
		api.HandleFunc("/status", handlers.HandleStatus(opts.Session)).Methods(http.MethodGet)
		api.HandleFunc("/save", handlers.HandleSave(opts.Session)).Methods(http.MethodPost)
		api.HandleFunc("/reload", handlers.HandleReload(opts.Session)).Methods(http.MethodPost)
	}

	return r
}

// Start serves until Stop is called. It returns an error only if the server could not run.
func (s *APIServer) Start() error {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("Server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("Server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("Server closed")
			return nil
		}
		return err
	}
	return nil
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
