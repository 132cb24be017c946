package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalledger/src/handler"
	"signalledger/src/ledger"
)

// StartServer mounts the ledger's API surface and serves until SIGINT or
// SIGTERM, then shuts down gracefully.
func StartServer(port string, svc *ledger.Service) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Prediction-service ingress and signal lifecycle.
	r.Post("/signals", handler.IssueSignalHandler(svc))
	r.Get("/signals/{id}", handler.GetSignalHandler(svc))
	r.Post("/signals/{id}/transition", handler.TransitionSignalHandler(svc))

	// Execution lifecycle.
	r.Post("/executions", handler.RequestExecutionHandler(svc))
	r.Post("/executions/{id}/fill", handler.ReportFillHandler(svc))
	r.Post("/executions/{id}/close", handler.CloseExecutionHandler(svc))
	r.Post("/executions/{id}/cancel", handler.CancelExecutionHandler(svc))

	// Per-user reads and admin reset.
	r.Get("/users/{userID}/executions/open", handler.OpenExecutionsHandler(svc))
	r.Get("/users/{userID}/risk-profile", handler.GetRiskProfileHandler(svc))
	r.Post("/users/{userID}/risk-profile/reset-auto-stop", handler.ResetAutoStopHandler(svc))

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
