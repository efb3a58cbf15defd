package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	pkgauth "github.com/angelmondragon/storefront-sync/pkg/auth"
	"github.com/angelmondragon/storefront-sync/pkg/config"
	"github.com/angelmondragon/storefront-sync/pkg/logger"
)

func main() {
	subject := flag.String("subject", "", "operator identity placed in the token subject (usually an email)")
	role := flag.String("role", string(pkgauth.RoleOperator), "token role: admin|operator")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "admintoken"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	var jwtCfg config.JWTConfig
	if err := envconfig.Process("", &jwtCfg); err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}

	parsedRole := pkgauth.Role(strings.ToLower(strings.TrimSpace(*role)))
	if !parsedRole.IsValid() {
		logg.Error(ctx, "invalid role", fmt.Errorf("unknown role %q", *role))
		os.Exit(2)
	}

	token, err := pkgauth.MintAccessToken(jwtCfg, time.Now(), *ttl, pkgauth.AccessTokenPayload{
		Subject: *subject,
		Role:    parsedRole,
		JTI:     uuid.NewString(),
	})
	if err != nil {
		logg.Error(ctx, "failed to mint token", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"subject": *subject,
		"role":    parsedRole,
		"ttl":     ttl.String(),
	}), "admin token minted")
	fmt.Println(token)
}
