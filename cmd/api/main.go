package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tower/internal/logger"
	"tower/internal/server"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

func main() {
	log := logger.New(logger.FromEnv("tower"))
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	srv, err := server.New(server.ConfigFromEnv(), log)
	if err != nil {
		return err
	}
	srv.RegisterFiberRoutes()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		log.Info("listening", zap.String("port", port))
		if err := srv.Listen(fmt.Sprintf(":%s", port)); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := srv.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gracefully")
		return srv.Shutdown(SHUTDOWN_TIMEOUT)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("graceful shutdown complete")
	return nil
}
