package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/config"
	"github.com/tendant/simple-lms/pkg/tokengenerator"
)

// tokengen mints a signed access or refresh token for local debugging. Tokens minted here
// have no refresh credential row, so student tokens fail session validation.
func main() {
	defaults := config.NewJWTConfigFromEnv()
	secret := flag.String("secret", defaults.Secret, "Secret key for signing the token (default from JWT_SECRET)")
	issuer := flag.String("issuer", defaults.Issuer, "Issuer of the token")
	audience := flag.String("audience", defaults.Audience, "Audience of the token")
	subject := flag.String("subject", "", "Account ID (required)")
	roleName := flag.String("role", "teacher", "Role claim: student, teacher or admin")
	fingerprint := flag.String("fingerprint", "", "Device fingerprint claim")
	tokenType := flag.String("type", tokengenerator.TokenTypeAccess, "Token type: access or refresh")
	expiry := flag.Duration("expiry", 30*time.Minute, "Token expiry duration (e.g., 30m, 1h, 24h)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "Error: subject is required")
		flag.Usage()
		os.Exit(1)
	}
	role, err := account.ParseRole(*roleName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tokenGen := tokengenerator.NewJwtTokenGenerator(*secret, *issuer, *audience)
	tokenStr, expiryTime, err := tokenGen.GenerateToken(tokengenerator.Claims{
		Role:             role.String(),
		Fingerprint:      *fingerprint,
		TokenType:        *tokenType,
		RegisteredClaims: jwt.RegisteredClaims{Subject: *subject},
	}, *expiry)
	if err != nil {
		slog.Error("Failed to generate token", "err", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "compact":
		fmt.Println(tokenStr)
	case "full":
		fmt.Printf("Token: %s\nExpires: %s\n", tokenStr, expiryTime.Format(time.RFC3339))
	case "debug":
		claims, err := tokenGen.ParseToken(tokenStr)
		if err != nil {
			slog.Error("Failed to parse generated token", "err", err)
			fmt.Fprintf(os.Stderr, "Error: Failed to parse generated token: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("=== Token Information ===\n")
		fmt.Printf("Token: %s\n\n", tokenStr)
		fmt.Printf("=== Token Claims ===\n")
		claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Printf("%s\n\n", claimsJSON)
		fmt.Printf("Expires: %s\n", expiryTime.Format(time.RFC3339))
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
