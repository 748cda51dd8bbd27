// This file is used to run database schema migrations
// How to run:
// go run cmd/migrate/main.go                 # Apply the schema
// go run cmd/migrate/main.go -retries 10     # With more connection retries
package main

import (
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/sellerdesk/sellerdesk/config"
	"github.com/sellerdesk/sellerdesk/internal/db"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var (
		retries   = flag.Int("retries", 5, "Number of connection retries")
		retryWait = flag.Duration("retry-wait", 3*time.Second, "Wait time between retries")
	)
	flag.Parse()

	opts := db.Options{
		Host:     config.GetEnv("DB_HOST", db.DefaultHost),
		User:     config.GetEnv("DB_USER", db.DefaultUser),
		Password: config.GetEnv("DB_PASSWORD", db.DefaultPassword),
		DBName:   config.GetEnv("DB_NAME", db.DefaultDBName),
		Port:     config.GetEnvInt("DB_PORT", db.DefaultPort),
	}

	var lastErr error
	for attempt := 1; attempt <= *retries; attempt++ {
		if _, lastErr = db.New(opts); lastErr == nil {
			log.Println("Schema migration completed")
			return
		}
		log.Printf("Migration attempt %d/%d failed: %v", attempt, *retries, lastErr)
		time.Sleep(*retryWait)
	}
	log.Fatalf("Migration failed after %d attempts: %v", *retries, lastErr)
}
