package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mirovand/licensehub-api/internal/domain/apikey"
	"github.com/mirovand/licensehub-api/internal/storage/filestore"
	"github.com/mirovand/licensehub-api/internal/util"
	"go.uber.org/zap"
)

func main() {
	keyFile := flag.String("file", "./data/apikeys.json", "Path to the API key state file")
	description := flag.String("description", "Agent verification key", "Description for the new key")
	flag.Parse()

	fullKey, prefix, keyHash, err := util.GenerateAPIKey()
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}

	fmt.Printf("Generated API Key (SAVE THIS securely!):\n%s\n\n", fullKey)
	fmt.Printf("Prefix: %s\n", prefix)
	fmt.Printf("Key Hash: %s\n", keyHash)

	logger, _ := zap.NewDevelopment()
	repo, err := filestore.NewAPIKeyRepository(*keyFile, logger)
	if err != nil {
		log.Fatalf("Failed to open API key store: %v", err)
	}

	newKeyRecord := &apikey.APIKey{
		KeyHash:     keyHash,
		Prefix:      prefix,
		Description: *description,
		IsEnabled:   true,
		CreatedAt:   time.Now().UTC(),
	}

	keyID, err := repo.Create(context.Background(), newKeyRecord)
	if err != nil {
		log.Fatalf("Failed to save API key: %v", err)
	}

	fmt.Printf("\nAPI Key saved with ID: %s\n", keyID)
}
