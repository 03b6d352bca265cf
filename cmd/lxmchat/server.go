package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"lxmchat/internal/constants"
	"lxmchat/internal/transport"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// diagnosticsServer exposes health, metrics and session state over HTTP on
// the loopback interface. It carries no message content.
type diagnosticsServer struct {
	server   *http.Server
	registry *transport.Registry
	logger   *logrus.Logger
}

func newDiagnosticsServer(port int, registry *transport.Registry, logger *logrus.Logger) *diagnosticsServer {
	s := &diagnosticsServer{
		registry: registry,
		logger:   logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}
	return s
}

func (s *diagnosticsServer) start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting diagnostics server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *diagnosticsServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("Diagnostics server shutdown failed")
	}
}

func (s *diagnosticsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *diagnosticsServer) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.registry.Sessions(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
