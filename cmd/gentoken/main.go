// Package main provides a simple tool to generate session tokens for the marketplace API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/factorhub/marketplace/internal/auth"
	"github.com/factorhub/marketplace/internal/models"
)

func main() {
	userID := flag.String("user", "", "User ID for the token")
	email := flag.String("email", "admin@localhost", "Email for the token")
	role := flag.String("role", string(models.RoleAdmin), "Role to act in: seller, buyer or admin")
	secret := flag.String("secret", "", "JWT secret (or set JWT_SECRET env var)")
	expiry := flag.Duration("expiry", 24*time.Hour, "Token expiry duration")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		os.Exit(1)
	}
	if !models.Role(*role).IsValid() {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", *role)
		os.Exit(1)
	}

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: JWT secret required. Use -secret flag or set JWT_SECRET env var")
		fmt.Fprintln(os.Stderr, "Example: go run ./cmd/gentoken -user <id> -role admin -secret 'your-secret-at-least-32-chars-long'")
		os.Exit(1)
	}
	if len(jwtSecret) < 32 {
		fmt.Fprintln(os.Stderr, "Error: JWT secret must be at least 32 characters")
		os.Exit(1)
	}

	svc := auth.NewService(&auth.Config{
		JWTSecret:   []byte(jwtSecret),
		TokenExpiry: *expiry,
	}, nil, nil)
	token, err := svc.GenerateToken(*userID, *email, models.Role(*role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
