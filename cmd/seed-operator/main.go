// seed-operator creates or updates an operator user.
// Role 'A' marks an administrator; 'O' (operator) is the default.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-operator -username u -name "Full Name" -password p [-admin]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
)

func main() {
	username := flag.String("username", "", "Required: login username")
	name := flag.String("name", "", "Optional: display name (defaults to username)")
	password := flag.String("password", "", "Required: password")
	admin := flag.Bool("admin", false, "Create the user with the admin role")
	flag.Parse()

	if strings.TrimSpace(*username) == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "-username and -password are required")
		os.Exit(1)
	}
	if strings.TrimSpace(*name) == "" {
		*name = *username
	}
	role := models.UserRoleOperator
	if *admin {
		role = models.UserRoleAdmin
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate users table: %v\n", err)
		os.Exit(1)
	}

	user, created, err := models.UpsertOperator(ctx, db, strings.TrimSpace(*username), strings.TrimSpace(*name), *password, role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to save operator: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Created operator: username=%q id=%d role=%s\n", user.Username, user.ID, role)
		return
	}
	fmt.Printf("Updated operator: username=%q id=%d role=%s\n", user.Username, user.ID, role)
}
