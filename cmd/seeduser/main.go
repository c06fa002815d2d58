// Command seeduser registers an operator account in the SQLite user table.
//
//	seeduser -email owner@pharmacy.example -name Owner -password '...'
//
// The account can sign in, but only addresses listed in ADMIN_EMAILS may
// change the catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmynk/pharmasupps/internal/auth"
	"github.com/mmynk/pharmasupps/internal/storage/sqlite"
	"github.com/mmynk/pharmasupps/pkg/logging"
)

func main() {
	dbPath := flag.String("db", envOr("DB_PATH", "./data/inventory.db"), "SQLite database path")
	email := flag.String("email", "", "operator email")
	name := flag.String("name", "", "display name")
	password := flag.String("password", "", "password, at least 8 characters")
	flag.Parse()

	logger := logging.Setup(os.Getenv("LOG_LEVEL"))

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("Failed to open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := auth.NewPasswordAuthenticator(store).Register(ctx, *email, *name, *password)
	if err != nil {
		logger.Error("Failed to register user", "email", *email, "error", err)
		os.Exit(1)
	}
	fmt.Printf("registered %s (%s)\n", user.Email, user.ID)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
