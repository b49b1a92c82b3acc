package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"geminigate/internal/api"
	"geminigate/internal/config"
	"geminigate/internal/credential"
	"geminigate/internal/logging"
	"geminigate/internal/pipeline"
	"geminigate/internal/upstream"
	"geminigate/internal/usage"
)

func main() {
	cfg := config.Load(os.Args[1:])

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	log.WithFields(log.Fields{
		"upstream":    cfg.UpstreamBaseURL,
		"credentials": cfg.CredentialCount,
	}).Info("starting geminigate")

	pool := credential.New(cfg.CredentialCount, cfg.RefreshURL, cfg.CredentialRPS)
	accountant := usage.New()
	client := upstream.New(cfg.UpstreamBaseURL)
	pl := pipeline.New(pool, accountant, client)

	router := api.New(pl, pool, accountant)
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped unexpectedly")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("server stopped")
}
