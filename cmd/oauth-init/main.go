package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Neonotso/budget-agent/internal/auth"
	"github.com/Neonotso/budget-agent/internal/cli"
	"github.com/Neonotso/budget-agent/internal/config"
)

// oauth-init runs the browser consent flow once and writes the token file
// the sheets backend reads. Register http://localhost:<OAUTH_REDIRECT_PORT>/callback
// as an authorized redirect URI on the OAuth client first.
func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)

	clientJSON, err := auth.LoadClientConfig(cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile)
	if err != nil {
		cli.Fatal(logger, "load oauth client", err)
	}
	provider, err := auth.NewProvider(clientJSON, cfg.GoogleOAuthTokenFile,
		auth.WithRedirectPort(cfg.OAuthRedirectPort),
		auth.WithLogger(logger),
	)
	if err != nil {
		cli.Fatal(logger, "oauth config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := provider.Authorize(ctx); err != nil {
		stop()
		cli.Fatal(logger, "authorization failed", err)
	}
	fmt.Printf("Saved token to %s\n", cfg.GoogleOAuthTokenFile)
}
