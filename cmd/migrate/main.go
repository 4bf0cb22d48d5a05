package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/becoinapp/becoin-backend/pkg/config"
	"github.com/becoinapp/becoin-backend/pkg/db"
	"github.com/becoinapp/becoin-backend/pkg/logger"
	"github.com/becoinapp/becoin-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	fatalIf(logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	// create and validate work on the filesystem alone
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		fatalIf(logg, "create migration", err)
		fmt.Println("created migration:", path)
		return
	case "validate":
		fatalIf(logg, "validate migrations", migrate.ValidateDir(*dir))
		fmt.Println("migration validation passed")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	fatalIf(logg, "connect database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	fatalIf(logg, "acquire sql handle", err)

	switch *cmd {
	case "up", "down", "status":
		fatalIf(logg, "goose "+*cmd, migrate.Run(ctx, sqlDB, *dir, *cmd))
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		fatalIf(logg, "goose migrate to version", migrate.MigrateToVersion(ctx, sqlDB, *dir, *version))
	default:
		fail("unknown -cmd value: " + *cmd)
	}
}

func fatalIf(logg *logger.Logger, action string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), action+" failed", err)
	os.Exit(1)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
