package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/acme/petadoption/internal/adapters/auth/apikey"
	"github.com/acme/petadoption/internal/core/domain"
	"github.com/acme/petadoption/internal/pkg/config"
	"github.com/acme/petadoption/internal/storage/sqldb"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	owner := flag.String("owner", "", "owner name of the new key")
	level := flag.String("level", "READ_WRITE", "access level: READ_ONLY or READ_WRITE")
	validFor := flag.Duration("valid-for", 0, "key lifetime, e.g. 720h (0 never expires)")
	flag.Parse()

	if *owner == "" {
		fmt.Println("Usage: go run ./cmd/keygen -owner <name> [-level READ_ONLY|READ_WRITE] [-valid-for 720h]")
		fmt.Println("Creates an API key in the configured database and prints its value.")
		os.Exit(1)
	}

	_ = godotenv.Load()

	if err := run(*configPath, *owner, *level, *validFor); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, owner, levelName string, validFor time.Duration) error {
	accessLevel, err := domain.ParseAccessLevel(levelName)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqldb.New(sqldb.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	keys, err := apikey.NewProvider(store.APIKeys())
	if err != nil {
		return err
	}

	var expiresAt *time.Time
	if validFor > 0 {
		t := time.Now().Add(validFor)
		expiresAt = &t
	}

	key, err := keys.Create(context.Background(), owner, accessLevel, expiresAt)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("Owner: %s\n", key.OwnerName)
	fmt.Printf("Access level: %s\n", key.AccessLevel)
	if key.ExpiresAt != nil {
		fmt.Printf("Expires at: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("API Key: %s\n", key.KeyValue)
	fmt.Println("\nSend it in the X-API-Key header.")
	return nil
}
