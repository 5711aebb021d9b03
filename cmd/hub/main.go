package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/thinkwithmahesh/Hasivu-sub010/internal/metrics"
	"github.com/thinkwithmahesh/Hasivu-sub010/internal/server"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/config"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/logging"
	"github.com/thinkwithmahesh/Hasivu-sub010/pkg/platform"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.Parse(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	records := make([]platform.UserRecord, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		records = append(records, platform.UserRecord{
			ID:          u.ID,
			Email:       u.Email,
			Role:        u.Role,
			TenantID:    u.TenantID,
			Active:      u.Active,
			Permissions: u.Permissions,
		})
	}
	directory := platform.NewStaticDirectory(records)
	orders := platform.NewStaticOrders()
	recorder := metrics.NewRecorder()

	app := server.NewApp(logger, ctx, cfg, directory, orders, recorder, recorder.Handler())
	if err := app.Initialize(); err != nil {
		logger.Error("Failed to initialize hub", slog.Any("error", err))
		os.Exit(1)
	}
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
