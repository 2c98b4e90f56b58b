package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"CandleFlow/internal/di"
	"CandleFlow/pkg/config"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath(), "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Printf("env=%s backend=%s timeframes=%v",
		cfg.Environment, cfg.Backend.Type, cfg.Engine.Timeframes)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)

	// blocks until signal
	return app.Run()
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
