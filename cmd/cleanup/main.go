package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/geovision/geoaccess/internal/config"
	"github.com/geovision/geoaccess/internal/store/postgres"
)

func main() {
	retention := flag.Duration("audit-retention", 90*24*time.Hour, "delete audit events older than this")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := postgres.NewSessionRepository(db).DeleteExpired(); err != nil {
		log.Fatalf("Failed to delete expired sessions: %v", err)
	}
	fmt.Println("Deleted expired sessions.")

	cutoff := time.Now().Add(-*retention)
	deleted, err := postgres.NewAuditRepository(db).DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Fatalf("Failed to prune audit events: %v", err)
	}
	fmt.Printf("Pruned %d audit events older than %s.\n", deleted, cutoff.Format(time.RFC3339))
}
