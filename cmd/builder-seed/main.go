package main

import (
	"context"
	"flag"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/migrations"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/db"
	"github.com/syed-c/standzon-sub008/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	path := flag.String("file", cfg.BuilderSeedFile, "YAML builder directory to load (defaults to BUILDER_SEED_FILE)")
	flag.Parse()

	log := logger.New(cfg.Env)
	if *path == "" {
		log.Error("no seed file given; pass -file or set BUILDER_SEED_FILE")
		return
	}
	log.Info("starting builder seed", "file", *path)

	seed, err := builders.LoadSeedFile(*path, geo.Default())
	if err != nil {
		log.Error("failed to load seed file", "error", err)
		panic("failed to load seed file: " + err.Error())
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if _, err := db.RunMigrations(ctx, pool, migrations.FS); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	repo := builders.NewRepository(pool)
	upserted := 0
	for _, b := range seed {
		if err := repo.Upsert(ctx, b); err != nil {
			log.Error("failed to upsert builder", "builderId", b.ID, "error", err)
			continue
		}
		upserted++
	}
	log.Info("builder seed complete", "builders", len(seed), "upserted", upserted)
}
