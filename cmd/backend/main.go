package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keydrop/internal/server"
)

func main() {
	addr := getenvDefault("KD_ADDR", ":8080")
	version := getenvDefault("KD_VERSION", "dev")

	secret := os.Getenv("KD_SESSION_SECRET")
	if secret == "" {
		log.Printf("service=backend msg=%q", "missing KD_SESSION_SECRET")
		os.Exit(1)
	}

	// Database
	dbConn, err := server.OpenDB(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "db_connect_failed", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	log.Printf("service=backend msg=%q", "running_migrations")
	if err := server.RunMigrations(dbConn); err != nil {
		log.Printf("service=backend msg=%q err=%v", "migration_failed", err)
		os.Exit(1)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	// Object storage
	blobs, err := server.NewMinioBlobs(
		os.Getenv("KD_S3_ENDPOINT"),
		os.Getenv("KD_S3_ACCESS_KEY"),
		os.Getenv("KD_S3_SECRET_KEY"),
		os.Getenv("KD_BUCKET"),
	)
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "object_storage_failed", err)
		os.Exit(1)
	}

	store := server.NewStore(dbConn)
	api := server.NewAPI(store, blobs, []byte(secret))

	srv := server.New(server.Config{
		Addr:    addr,
		Version: version,
		API:     api,
		DB:      dbConn,
	})

	// Expiry sweep runs alongside the server; lazy expiry on access
	// handles everything this misses between ticks.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go server.StartSweepJob(sweepCtx, server.SweepConfigFromEnv(store, blobs))

	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s version=%s", "starting", addr, version)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		stopSweep()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

// getenvDefault reads an environment variable and returns a default value
// if not set.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
