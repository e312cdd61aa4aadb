package main

import (
	"context"
	"os"
	"time"

	mongoMigration "robopay/internal/migrations/mongo"
	"robopay/pkg/config"
)

const JobName = "mongo-migration"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Mongo migration job")
	if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		return 1
	}
	cfg.Log.Info("Migration completed")
	return 0
}
