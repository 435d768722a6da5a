package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/config"
)

type Config struct {
	Database config.DatabaseConfig
}

func main() {
	// Parse command line arguments
	email := flag.String("email", "", "Email for the new account (required)")
	password := flag.String("password", "", "Password for the new account (required)")
	roleName := flag.String("role", "", "Role of the new account: student, teacher or admin (required)")
	flag.Parse()

	// Validate required arguments
	if *email == "" || *password == "" || *roleName == "" {
		fmt.Println("Error: email, password and role are required")
		flag.Usage()
		os.Exit(1)
	}

	role, err := account.ParseRole(*roleName)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbConfig := cfg.Database.ToDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(1)
	}
	defer pool.Close()

	accountService := account.NewService(account.NewPostgresRepository(pool))
	acct, err := accountService.CreateAccount(ctx, *email, *password, role)
	if err != nil {
		slog.Error("Failed to create account", "email", *email, "error", err)
		os.Exit(1)
	}

	slog.Info("Account created successfully", "accountID", acct.ID, "email", acct.Email, "role", acct.Role)
}
