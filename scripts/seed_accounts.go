package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"crossposter/internal/database"
	"crossposter/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type AccountsConfig struct {
	Accounts []models.PlatformAccount `yaml:"accounts"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		accountsPath = flag.String("accounts", "configs/accounts.yaml", "path to accounts.yaml")
		dbPath       = flag.String("db", "./data/crossposter.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*accountsPath)
	if err != nil {
		return fmt.Errorf("read accounts: %w", err)
	}
	var cfg AccountsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse accounts: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SyncAccounts(ctx, cfg.Accounts); err != nil {
		return fmt.Errorf("sync accounts: %w", err)
	}

	fmt.Printf("done: synced=%d\n", len(cfg.Accounts))
	return nil
}
