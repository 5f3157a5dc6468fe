package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer conn.Close(ctx)

	files, err := filepath.Glob("migrations/*.up.sql")
	if err != nil {
		log.Fatal("failed to glob migrations", zap.Error(err))
	}
	sort.Strings(files)

	for _, file := range files {
		log.Info("applying migration", zap.String("file", file))
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("failed to read migration", zap.String("file", file), zap.Error(err))
		}

		if _, err := conn.Exec(ctx, string(content)); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Warn("migration already applied, skipping", zap.String("file", file))
				continue
			}
			log.Fatal("failed to execute migration", zap.String("file", file), zap.Error(err))
		}
	}

	log.Info("migrations applied")
}
