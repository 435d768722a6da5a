package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"
)

// PrintBootstrapResult displays the bootstrap results in a clean, formatted way
func PrintBootstrapResult(result *AdminBootstrapResult) {
	if result == nil || !result.UserCreated {
		return
	}

	border := strings.Repeat("=", 80)
	fmt.Printf("\n%s\n", border)
	fmt.Println("ADMIN BOOTSTRAP COMPLETED")
	fmt.Printf("%s\n", border)

	fmt.Printf("  Email:       %s\n", result.Email)
	fmt.Printf("  Account ID:  %s\n", result.AccountID)

	// Only display password if it was auto-generated (not from environment)
	if !result.PasswordFromEnv {
		fmt.Printf("  Password:    %s\n", result.Password)
		fmt.Println("\n  THIS PASSWORD WILL NOT BE DISPLAYED AGAIN - SAVE IT NOW!")
	} else {
		fmt.Printf("  Password:    (configured via ADMIN_PASSWORD environment variable)\n")
		fmt.Println("\n  Remove ADMIN_PASSWORD from the environment after first login.")
	}
	fmt.Printf("%s\n\n", border)
}

// LogBootstrapSummary logs a concise summary using slog (for structured logging)
func LogBootstrapSummary(result *AdminBootstrapResult) {
	if result == nil || !result.UserCreated {
		return
	}

	// Log without sensitive information (password)
	slog.Info("Admin bootstrap summary",
		"admin_email", result.Email,
		"account_id", result.AccountID,
		"password_from_env", result.PasswordFromEnv,
	)
}
