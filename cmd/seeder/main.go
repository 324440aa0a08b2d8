// cmd/seeder/main.go
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

func main() {
	log := logger.New()

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	if err := db.Migrate(conn); err != nil {
		log.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := db.SeedUsersIfEmpty(conn); err != nil {
		log.Error("user seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	seedFiles := []string{
		"seed/campaigns.sql",
	}
	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Error("failed to read seed file", slog.String("file", file), slog.Any("error", err))
			os.Exit(1)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			log.Error("failed to execute seed file", slog.String("file", file), slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
