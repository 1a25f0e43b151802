package main

import (
	"teamhub-realtime-svc/src/internal/config"
	"teamhub-realtime-svc/src/internal/logger"
	"teamhub-realtime-svc/src/internal/server"

	"github.com/sirupsen/logrus"
)

var log = *logrus.StandardLogger()

func main() {
	cfg := config.Load()
	logger.Init(cfg)

	log.WithFields(logrus.Fields{
		"version":         cfg.App.Version,
		"max_connections": cfg.Realtime.MaxTotalConnections,
		"max_anonymous":   cfg.Realtime.MaxAnonymousConnections,
		"auth_timeout_s":  cfg.Realtime.AuthTimeoutSeconds,
		"heartbeat_s":     cfg.Realtime.HeartbeatSeconds,
	}).Infof("Starting %s", cfg.App.Name)

	srv := server.New(cfg)
	if err := srv.Start(); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
}
