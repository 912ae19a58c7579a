// Package server wires the HTTP API and the gRPC health service together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kartoza/somnia/internal/api"
	"github.com/kartoza/somnia/internal/config"
	"github.com/kartoza/somnia/internal/history"
	"github.com/kartoza/somnia/internal/predict"
)

// Server holds all the components for the service
type Server struct {
	cfg        config.Config
	logger     *zap.Logger
	httpServer *http.Server
	router     *mux.Router
	history    *history.Store

	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server
}

// New creates a Server. hist may be nil when history is disabled.
func New(cfg config.Config, svc *predict.Service, hist *history.Store, logger *zap.Logger, version string) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  mux.NewRouter(),
		history: hist,
	}

	var reader api.HistoryReader
	if hist != nil {
		reader = hist
	}
	api.NewHandler(svc, reader, logger, version).RegisterRoutes(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.GRPCPort > 0 {
		if err := s.listenGRPC(fmt.Sprintf(":%d", cfg.GRPCPort)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// listenGRPC binds the health service to addr. Artifacts are loaded before
// the server is built, so it reports SERVING straight away.
func (s *Server) listenGRPC(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc on %s: %w", addr, err)
	}

	s.grpcListener = lis
	s.grpcServer = grpc.NewServer()
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves gRPC health in the background and HTTP until Stop is called.
func (s *Server) Start() error {
	if s.grpcServer != nil {
		go func() {
			s.logger.Info("grpc health listening", zap.String("addr", s.grpcListener.Addr().String()))
			if err := s.grpcServer.Serve(s.grpcListener); err != nil {
				s.logger.Error("grpc server stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("server listening", zap.String("addr", fmt.Sprintf("http://localhost:%d", s.cfg.Port)))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.health != nil {
		s.health.Shutdown()
	}

	err := s.httpServer.Shutdown(ctx)

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	// Close stores
	if s.history != nil {
		if cerr := s.history.Close(); cerr != nil {
			s.logger.Error("error closing history store", zap.Error(cerr))
		}
	}
	return err
}
