// genkey generates a vault key for sealing connector tokens.
//
// Usage (run from the repo root):
//
//	go run scripts/genkey/main.go
//
// Writes:
//
//	data/vault.key  (mode 0600 — keep this secret)
//
// The file holds a 32-byte key, base64-encoded, matching what
// LODESTONE_VAULT_KEY expects. The data/ directory is gitignored. Run once
// before storing any connector tokens; rotating the key makes every sealed
// token unreadable.
package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lodestone-ai/lodestone/internal/vault"
)

func main() {
	dir := "data"
	keyPath := filepath.Join(dir, "vault.key")

	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}

	// Refuse to overwrite an existing key — rotation would orphan every
	// sealed token.
	if _, err := os.Stat(keyPath); err == nil {
		fmt.Fprintf(os.Stderr, "error: %s already exists — delete it first if you really want to rotate\n", keyPath)
		os.Exit(1)
	}

	key, err := vault.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: generate key: %v\n", err)
		os.Exit(1)
	}

	encoded := base64.StdEncoding.EncodeToString(key) + "\n"
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "error: write %s: %v\n", keyPath, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", keyPath)
	fmt.Println("Set LODESTONE_VAULT_KEY=data/vault.key to use it.")
}
