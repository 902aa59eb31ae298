package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/tjfontaine/behavior-verify-gateway/internal/adapters/auth/apikey"
)

func main() {
	var apiKey string
	switch len(os.Args) {
	case 1:
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
			os.Exit(1)
		}
		apiKey = "bvg_" + base64.RawURLEncoding.EncodeToString(buf)
	case 2:
		apiKey = os.Args[1]
	default:
		fmt.Println("Usage: go run ./cmd/keygen [api-key]")
		fmt.Println("Generates an admin API key (or hashes the one given) for config.yaml")
		os.Exit(1)
	}

	keyHash := apikey.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("admin:\n")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - key_hash: \"%s\"\n", keyHash)
	fmt.Printf("      description: \"Generated key\"\n")
}
