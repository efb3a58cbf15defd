package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-sync/pkg/config"
	"github.com/angelmondragon/storefront-sync/pkg/db"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
	"github.com/angelmondragon/storefront-sync/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory")
	useEmbedded := flag.Bool("embedded", false, "use the migrations compiled into this binary instead of -dir")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	_ = godotenv.Load()

	var source fs.FS = os.DirFS(*dir)
	if *useEmbedded {
		source = migrate.Embedded()
	}

	// Offline commands never touch config or the database.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.Create(*dir, *name, time.Now())
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.Validate(source); err != nil {
			fail("validation failed: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      *cmd,
		"embedded": *useEmbedded,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to get sql handle", err)
		os.Exit(1)
	}
	runner, err := migrate.NewRunner(sqlDB, source)
	if err != nil {
		logg.Error(ctx, "failed to prepare migrations", err)
		os.Exit(1)
	}

	var steps []migrate.Step
	switch *cmd {
	case "up":
		steps, err = runner.Up(ctx)
	case "down":
		steps, err = runner.Down(ctx)
	case "to":
		if *target == "" {
			fail("missing -version for to")
		}
		steps, err = runner.To(ctx, *target)
	case "status":
		var rows []migrate.Status
		rows, err = runner.Status(ctx)
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Printf("%-8s %d %s\n", state, row.Version, row.Name)
		}
	default:
		fail("unknown -cmd %q", *cmd)
	}

	for _, step := range steps {
		fmt.Printf("%-4s %d %s\n", step.Direction, step.Version, step.Name)
	}
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}

	version, err := runner.Version(ctx)
	if err != nil {
		logg.Error(ctx, "failed to read schema version", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "version", version), "migrate finished")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
