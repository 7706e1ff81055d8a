package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/arklim/srm-service/internal/infra/config"
	"github.com/arklim/srm-service/internal/infra/security"
)

// devtoken prints a bearer token for a user id, signed with the configured JWT secret.
func main() {
	userID := flag.String("user", "", "user id to put in the token")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.App.Env == "production" {
		log.Fatal("refusing to mint tokens in production")
	}

	manager, err := security.NewTokenManager(cfg.JWT)
	if err != nil {
		log.Fatalf("init token manager: %v", err)
	}

	token, err := manager.Issue(*userID, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Println(token)
}
