// Command tokengen mints customer or admin credentials signed with the
// configured secrets, for local testing and support work.
//
//	tokengen -customer 42
//	tokengen -customer 1 -admin -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"storefront-orders/config"
	"storefront-orders/utils"
)

func main() {
	customerID := flag.Int64("customer", 0, "subject id to put in the token")
	admin := flag.Bool("admin", false, "issue an admin back office token (sent as the admin_token cookie)")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	flag.Parse()

	if *customerID <= 0 {
		fmt.Fprintln(os.Stderr, "-customer must be a positive id")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	tokens := utils.NewTokenService([]byte(cfg.JWTSecret), utils.CustomerNamespace, lifetime)
	if *admin {
		tokens = utils.NewTokenService([]byte(cfg.AdminJWTSecret), utils.AdminNamespace, lifetime)
	}

	token, err := tokens.IssueWithExpiry(*customerID, *admin, time.Now().Add(lifetime))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
