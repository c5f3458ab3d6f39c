package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/providentiaww/trilix-oauth/internal/config"
	"github.com/providentiaww/trilix-oauth/internal/events"
	"github.com/providentiaww/trilix-oauth/internal/logging"
	"github.com/providentiaww/trilix-oauth/internal/oauth"
	"github.com/providentiaww/trilix-oauth/internal/storage"
)

const usage = `usage: oauth-store <command> [flags]

commands:
  init         ensure the schema and seed clients from OAUTH_CLIENTS_FILE (default)
  register     register a client and print its client information
  revoke       revoke a token on behalf of a client
  purge-codes  delete expired authorization codes (postgres backend)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.LoadEnv(ctx, "../../.env", zerolog.New(os.Stderr).With().Timestamp().Logger())

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg)

	cmd := "init"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	if err := run(ctx, cmd, args, cfg, logger); err != nil {
		logger.Error().Err(err).Str("command", cmd).Msg("oauth-store failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, cfg *config.Config, logger zerolog.Logger) error {
	stores, err := storage.NewStoresFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize oauth stores: %w", err)
	}
	defer stores.Close()

	switch cmd {
	case "init":
		return runInit(ctx, cfg, stores, logger)
	case "register":
		return runRegister(ctx, args, stores, logger)
	case "revoke":
		return runRevoke(ctx, args, cfg, stores, logger)
	case "purge-codes":
		return runPurgeCodes(ctx, stores)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runInit(ctx context.Context, cfg *config.Config, stores *storage.Stores, logger zerolog.Logger) error {
	if err := stores.Ping(ctx); err != nil {
		return err
	}
	if cfg.ClientsFile == "" {
		logger.Info().Str("backend", cfg.StoreBackend).Msg("oauth store ready, no clients file configured")
		return nil
	}
	registry, err := storage.NewFileClientStore(cfg.ClientsFile)
	if err != nil {
		return err
	}
	res, err := storage.SeedClients(ctx, registry, stores.Clients, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Str("backend", cfg.StoreBackend).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Msg("oauth store ready")
	return nil
}

func runRegister(ctx context.Context, args []string, stores *storage.Stores, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "client_name")
	redirects := fs.String("redirect-uris", "", "space separated redirect URIs")
	scope := fs.String("scope", "", "space separated scope")
	grants := fs.String("grant-types", "authorization_code refresh_token", "space separated grant types")
	responses := fs.String("response-types", "code", "space separated response types")
	authMethod := fs.String("auth-method", oauth.DefaultTokenEndpointAuthMethod, "token_endpoint_auth_method")
	secretTTL := fs.Duration("secret-ttl", 0, "client secret lifetime, 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	client, err := oauth.NewClient(oauth.ClientMetadata{
		ClientName:              *name,
		RedirectURIs:            oauth.ScopeToList(*redirects),
		Scope:                   oauth.ListToScope(oauth.ScopeToList(*scope)),
		GrantTypes:              oauth.ScopeToList(*grants),
		ResponseTypes:           oauth.ScopeToList(*responses),
		TokenEndpointAuthMethod: *authMethod,
	}, now)
	if err != nil {
		return err
	}
	if *secretTTL > 0 && client.HasClientSecret() {
		client.ClientSecretExpiresAt = now.Add(*secretTTL).Unix()
	}
	if err := client.Validate(); err != nil {
		return err
	}
	if err := stores.Clients.CreateClient(ctx, client); err != nil {
		return err
	}
	logger.Info().Str("client_id", client.ClientID).Msg("client registered")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(client.Info())
}

func runRevoke(ctx context.Context, args []string, cfg *config.Config, stores *storage.Stores, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	clientID := fs.String("client", "", "client_id owning the token")
	token := fs.String("token", "", "access or refresh token value")
	hint := fs.String("hint", "", "token_type_hint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *clientID == "" || *token == "" {
		return fmt.Errorf("-client and -token are required")
	}

	queries := oauth.NewQueries(stores.Clients, stores.Tokens, oauth.WithLogger(logger))
	client, err := queries.QueryClient(ctx, *clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("client %s is not registered", *clientID)
	}

	var notifier oauth.RevocationNotifier
	if cfg.AMQPURL != "" {
		pub, err := events.DialRevocationPublisher(cfg.AMQPURL, cfg.RevocationExchange, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		notifier = pub
	}

	endpoint := oauth.NewRevocationEndpoint(stores.Tokens, notifier, oauth.WithLogger(logger))
	return endpoint.Revoke(ctx, *token, *hint, client)
}

func runPurgeCodes(ctx context.Context, stores *storage.Stores) error {
	if stores.Postgres == nil {
		return fmt.Errorf("purge-codes needs the postgres backend")
	}
	_, err := stores.Postgres.DeleteExpiredCodes(ctx, time.Now())
	return err
}
