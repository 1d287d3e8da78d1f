// Command server runs the scorekeeping HTTP and WebSocket service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/ohhell/internal/app"
	"github.com/jason-s-yu/ohhell/internal/auth"
	"github.com/jason-s-yu/ohhell/internal/config"
	"github.com/jason-s-yu/ohhell/internal/handlers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration.")
	}
	log := cfg.NewLogger()

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped.")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	if cfg.AdminPasswordHash == "" && cfg.LimitedPasswordHash == "" {
		log.Warn("No password hashes configured; the service is read-only.")
	}

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	log.WithFields(logrus.Fields{
		"source":  a.Source,
		"players": len(a.Games.ListPlayers()),
		"games":   len(a.Games.ListGames()),
	}).Info("Registry loaded.")

	srv := handlers.NewServer(a.Games, auth.NewGate(cfg.AdminPasswordHash, cfg.LimitedPasswordHash), issuer, log)
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.Games.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for {
			select {
			case w := <-a.Games.Warnings():
				log.WithFields(logrus.Fields{"sink": w.Sink, "id": w.ID}).Debug("Store out of sync until the next write.")
			case <-ctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		log.WithField("addr", cfg.ListenAddr).Info("Listening.")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
