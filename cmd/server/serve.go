package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jengzang/tourist-safety-backend/internal/api"
	"github.com/jengzang/tourist-safety-backend/internal/handler"
	"github.com/jengzang/tourist-safety-backend/internal/middleware"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the training scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Log.Format != "console" {
			gin.SetMode(gin.ReleaseMode)
		}

		var limiter *middleware.RateLimiter
		if a.cfg.RateLimit.Requests > 0 {
			limiter = middleware.NewRateLimiter(a.cfg.RateLimit.Requests, a.cfg.RateLimit.Window)
			go limiter.Run(ctx)
		}

		// 初始化路由
		router := api.SetupRouter(api.Handlers{
			Health:     handler.NewHealthHandler(a.registry),
			Assessment: handler.NewAssessmentHandler(a.assessment),
			Tourist:    handler.NewTouristHandler(a.repos.assessments, a.repos.routes),
			Training:   handler.NewTrainingHandler(a.scheduler, a.repos.runs, a.registry),
			Zone:       handler.NewZoneHandler(a.catalog),
		}, limiter, a.logger)

		a.scheduler.Start(ctx)
		defer a.scheduler.Stop()
		go a.pruneHistory(ctx)

		srv := &http.Server{
			Addr:              a.cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("Server starting", zap.String("addr", a.cfg.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Server shutdown incomplete", zap.Error(err))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
}
