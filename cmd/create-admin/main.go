// Package main provides a command to bootstrap an administrator account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-password/password"

	"github.com/trading-grow/internal/auth"
	"github.com/trading-grow/internal/config"
	"github.com/trading-grow/internal/logging"
	"github.com/trading-grow/internal/service"
	"github.com/trading-grow/internal/storage"
)

const generatedPasswordLength = 20

func main() {
	email := flag.String("email", "", "Admin email address (required)")
	name := flag.String("name", "", "Display name")
	pass := flag.String("password", "", "Password; a random one is generated and printed when empty")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: create-admin -email admin@example.com [-name Admin] [-password secret]")
		os.Exit(2)
	}

	cfg, err := config.LoadToolConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, "text", logging.FileOptions{})

	generated := false
	if *pass == "" {
		// 4 digits, 2 symbols, mixed case, no repeated characters
		secret, err := password.Generate(generatedPasswordLength, 4, 2, false, false)
		if err != nil {
			logger.WithError(err).Fatal("Failed to generate password")
		}
		*pass = secret
		generated = true
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	accounts := service.NewAccountService(
		storage.NewAccountRepository(postgres),
		auth.NewHasher(cfg.Auth.BcryptCost),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	account, created, err := accounts.EnsureAdmin(ctx, &service.CreateAccountInput{
		Email:       *email,
		Password:    *pass,
		DisplayName: *name,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to ensure admin account")
	}

	action := "promoted"
	if created {
		action = "created"
	}
	logger.WithFields(map[string]interface{}{
		"account_id": account.ID,
		"email":      account.Email,
		"tier":       account.Tier,
	}).Infof("Admin account %s", action)

	if generated {
		fmt.Printf("email:    %s\npassword: %s\n", account.Email, *pass)
	}
}
