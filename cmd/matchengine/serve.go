package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"matchengine/internal/events"
	"matchengine/internal/handler"
	"matchengine/internal/service"
)

func newServeCommand(a *app) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when amqp.url is set, the criteria consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func (a *app) serve(parent context.Context, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting matchengine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if migrate {
		applied, err := store.Migrator().Migrate(ctx)
		if err != nil {
			return err
		}
		a.log.Info("migrations applied", zap.Int("count", applied))
	}

	oracle, err := a.newOracle(ctx)
	if err != nil {
		return err
	}
	locker, closeLocker, err := a.newLocker(ctx)
	if err != nil {
		return err
	}
	defer closeLocker()

	var (
		sink   service.NotificationSink
		broker *events.Broker
	)
	if a.cfg.AMQP.URL != "" {
		broker, err = events.Dial(a.cfg.AMQP.URL, a.log)
		if err != nil {
			return err
		}
		defer broker.Close()

		publisher := events.NewNotificationPublisher(broker.PublishChannel(), a.cfg.AMQP.NotificationExchange, a.log)
		if err := publisher.Declare(); err != nil {
			return err
		}
		sink = publisher
	} else {
		a.log.Warn("amqp.url not set, criteria events and notification publishing are disabled")
	}

	svc := a.newMatchService(store, oracle, sink, locker)

	errCh := make(chan error, 2)
	if broker != nil {
		consumer := events.NewCriteriaConsumer(broker.ConsumeChannel(), a.cfg.AMQP.CriteriaQueue, a.cfg.AMQP.Prefetch, svc, a.log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("criteria consumer: %w", err)
			}
		}()
	}

	gin.SetMode(a.cfg.Server.GinMode)
	router := handler.NewRouter(svc, handler.RouterOptions{
		AllowedOrigins:      a.cfg.Server.AllowedOrigins,
		EmbeddingDimensions: a.cfg.OpenAI.EmbeddingDimensions,
		Build:               handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		Logger:              a.log,
	})

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errCh:
		a.log.Error("component failed, shutting down", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", zap.Error(err))
	}
	a.log.Info("server stopped")
	return runErr
}
