// mint-token signs a local JWT for poking the API during development.
// Auth tokens are normally issued by the identity service; this tool only
// works against an API started with the same JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/filippmiller/myaitutor-sub000/internal/config"
	"github.com/filippmiller/myaitutor-sub000/internal/pkg/jwt"
)

func main() {
	accountFlag := flag.String("account", "", "account id (random if empty)")
	roleFlag := flag.String("role", "student", "token role: student or admin")
	ttlFlag := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()

	accountID := uuid.New()
	if *accountFlag != "" {
		parsed, err := uuid.Parse(*accountFlag)
		if err != nil {
			log.Fatalf("invalid account id: %v", err)
		}
		accountID = parsed
	}

	token, err := jwt.NewService(cfg.JWTSecret).Sign(accountID, *roleFlag, *ttlFlag)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Printf("account: %s\nrole:    %s\ntoken:   %s\n", accountID, *roleFlag, token)
}
