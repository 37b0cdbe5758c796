// Package main applies or rolls back the database schema.
//
// Usage:
//
//	migrate up
//	migrate down
//	migrate steps -1
//	migrate version
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"clientregistry/internal/config"
	"clientregistry/internal/infrastructure/storage/postgres"
	"clientregistry/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.ApplicationName = "clientregistry-migrate"
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 0
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	migrator, err := postgres.NewMigrator(pool, log.Zap())
	if err != nil {
		log.Fatalw("failed to create migrator", "error", err)
	}
	defer migrator.Close()

	switch os.Args[1] {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "steps":
		if len(os.Args) < 3 {
			usage()
		}
		n, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil || n == 0 {
			log.Fatalw("steps needs a non-zero integer", "value", os.Args[2])
		}
		err = migrator.Steps(n)
	case "version":
		version, dirty, verr := migrator.Version()
		if verr == nil {
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		}
		err = verr
	default:
		usage()
	}

	if err != nil {
		log.Fatalw("migration command failed", "command", os.Args[1], "error", err)
	}
}

func usage() {
	fmt.Println("usage: migrate up | down | steps N | version")
	os.Exit(2)
}
