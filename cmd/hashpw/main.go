// Command hashpw prints a bcrypt hash for seeding user accounts, or checks a
// password against an existing hash.
//
//	hashpw 'S3cure!pass'
//	hashpw --check '$2a$12$...' 'S3cure!pass'
package main

import (
	"fmt"
	"os"

	"github.com/avissapr/advisordesk/internal/security"
	"github.com/avissapr/advisordesk/internal/services"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	config := security.DefaultSecurityConfig()

	cost := pflag.Int("cost", config.BcryptCost, "bcrypt cost factor")
	check := pflag.String("check", "", "existing hash to compare the password against")
	skipPolicy := pflag.Bool("skip-policy", false, "hash passwords that fail the password policy")
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hashpw [--cost N] [--check HASH] <password>")
		os.Exit(2)
	}
	password := pflag.Arg(0)

	if *check != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(*check), []byte(password)); err != nil {
			fmt.Printf("Hash does NOT match: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Hash matches")
		return
	}

	if !*skipPolicy {
		if err := security.NewValidationService(config).ValidatePassword(password); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	hash, err := services.NewAuthService(nil, *cost).HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
