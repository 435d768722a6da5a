package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-lms/pkg/config"
	"github.com/tendant/simple-lms/pkg/db"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	direction := flag.String("direction", db.DirectionUp, "migration direction: up or down")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	dbConfig := config.NewDatabaseConfigFromEnv()
	dsn := config.GetEnvOrDefault("DATABASE_URL", dbConfig.ToDatabaseURL())

	if err := db.Migrate(dsn, *direction); err != nil {
		slog.Error("Migration failed", "direction", *direction, "host", dbConfig.Host, "database", dbConfig.Database, "error", err)
		os.Exit(1)
	}
	slog.Info("Migration complete", "direction", *direction)
}
