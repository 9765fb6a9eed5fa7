package main

import (
	"flag"
	"os"

	"SignalGuard/internal/di"
	"SignalGuard/pkg/config"
	applogger "SignalGuard/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.example.yaml", "config file path")
	flag.Parse()

	boot, _ := applogger.New(&applogger.Config{Level: "info", Format: "json"})

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", applogger.String("path", *configPath), applogger.Error(err))
		os.Exit(1)
	}

	boot.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.String("storage", cfg.Storage.Backend),
		applogger.Strings("sources", cfg.Weights.Sources),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
	)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", applogger.Error(err))
		os.Exit(1)
	}

	runErr := app.Run()
	cleanup()
	if runErr != nil {
		boot.Error("app error", applogger.Error(runErr))
		os.Exit(1)
	}
}
