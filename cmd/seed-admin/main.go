// seed-admin creates the administrator account, or resets its password when
// it already exists.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	ADMIN_PASSWORD=... go run ./cmd/seed-admin -username admin -email admin@example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/erpweb/erp_backend/config"
	"github.com/erpweb/erp_backend/models"
)

func main() {
	username := flag.String("username", "admin", "Admin username")
	email := flag.String("email", "admin@example.com", "Admin email (used only when the account is created)")
	password := flag.String("password", "", "Admin password (default: $ADMIN_PASSWORD)")
	migrate := flag.Bool("migrate", true, "Run AutoMigrate before seeding")
	flag.Parse()

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if strings.TrimSpace(*username) == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "username and password are required (-password or ADMIN_PASSWORD)")
		os.Exit(2)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if *migrate {
		models.MigrateTable()
	}

	user, created, err := models.ResetPassword(ctx, strings.TrimSpace(*username), strings.TrimSpace(*email), *password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin user: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Created admin user: username=%q id=%d\n", user.Username, user.ID)
		return
	}
	fmt.Printf("Reset admin user password: username=%q id=%d\n", user.Username, user.ID)
}
