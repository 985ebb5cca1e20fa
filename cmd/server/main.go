package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"labcafe/internal/auth"
	"labcafe/internal/config"
	"labcafe/internal/db"
	httpapi "labcafe/internal/http"
	"labcafe/internal/repository"
	"labcafe/internal/service"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}
	log.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.WithError(err).Fatal("database error")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log); err != nil {
		log.WithError(err).Fatal("migration error")
	}

	svc := service.New(repository.New(pool),
		service.WithLogger(log),
		service.WithDefaultCurrency(cfg.DefaultCurrency),
	)
	if admin := cfg.BootstrapAdmin; admin != nil {
		if err := svc.EnsureAdmin(ctx, admin.ID, admin.Email, admin.DisplayName); err != nil {
			log.WithError(err).Fatal("bootstrap admin error")
		}
	}

	handler := httpapi.NewHandler(svc, log, cfg.DefaultCurrency)
	router := httpapi.NewRouter(handler, auth.New(cfg.JWTSecret, svc))

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("labcafe listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil {
			log.WithError(closeErr).Error("force close failed")
		}
	}
}
