package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/app"
	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/config"
	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/server"
	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DBPath:             cfg.DBPath,
		StorageDir:         cfg.StorageDir,
		CatalogPath:        cfg.CatalogPath,
		WarnWindowDays:     cfg.WarnWindowDays,
		StrictRestoreFiles: cfg.StrictRestoreFiles,
		AutoBackup:         cfg.AutoBackup,
		AutoBackupKeep:     cfg.AutoBackupKeep,
		MinioEndpoint:      cfg.MinioEndpoint,
		MinioAccessKey:     cfg.MinioAccessKey,
		MinioSecretKey:     cfg.MinioSecretKey,
		MinioBucket:        cfg.MinioBucket,
		MinioUseSSL:        cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("gyd server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
