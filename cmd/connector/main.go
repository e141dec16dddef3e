package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	socialconnect "github.com/goliatone/go-social-connect"
	"github.com/goliatone/go-social-connect/core"
	"github.com/goliatone/go-social-connect/inbound"
	connectmigrations "github.com/goliatone/go-social-connect/migrations"
	"github.com/goliatone/go-social-connect/security"
	sqlstore "github.com/goliatone/go-social-connect/store/sql"
	connectsync "github.com/goliatone/go-social-connect/sync"
)

const defaultHTTPAddr = ":8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "connector:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, logger := glog.Resolve("social-connect", nil, nil)
	logger = glog.Ensure(logger)

	cfg := configFromEnv()

	client, err := openPersistence(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	var factoryOpts []sqlstore.FactoryOption
	var secrets core.SecretProvider
	if key := strings.TrimSpace(os.Getenv("SOCIAL_CONNECT_TOKEN_KEY")); key != "" {
		cipher, cipherErr := security.NewTokenCipherFromString(key)
		if cipherErr != nil {
			return fmt.Errorf("token cipher: %w", cipherErr)
		}
		secrets = cipher
		factoryOpts = append(factoryOpts, sqlstore.WithSecretProvider(cipher))
	} else {
		logger.Warn("SOCIAL_CONNECT_TOKEN_KEY is not set, tokens are stored unencrypted")
	}

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		return fmt.Errorf("repository factory: %w", err)
	}

	registry := core.NewProviderRegistry()
	if err := socialconnect.RegisterConfiguredProviders(registry, cfg); err != nil {
		return fmt.Errorf("register providers: %w", err)
	}

	options := []socialconnect.Option{
		socialconnect.WithLogger(logger),
		socialconnect.WithRegistry(registry),
		socialconnect.WithRepositoryFactory(factory),
		socialconnect.WithPersistenceClient(client),
	}
	if secrets != nil {
		options = append(options, socialconnect.WithSecretProvider(secrets))
	}
	if verifier := sessionVerifierFromEnv(); verifier != nil {
		options = append(options, socialconnect.WithSessionVerifier(verifier))
	}

	// SOCIAL_CONNECT_SYNC_WORKER=true drains callback-seeded sync jobs in
	// process; without it, seeded jobs stay pending until a manual sync.
	var syncQueue *connectsync.InProcessQueue
	if os.Getenv("SOCIAL_CONNECT_SYNC_WORKER") == "true" {
		syncQueue = connectsync.NewInProcessQueue(0)
		options = append(options, socialconnect.WithJobEnqueuer(syncQueue))
	}

	service, err := socialconnect.NewConnectorService(cfg, options...)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	if syncQueue != nil {
		worker, workerErr := connectsync.NewWorker(service, syncQueue, connectsync.WithWorkerLogger(logger))
		if workerErr != nil {
			return fmt.Errorf("build sync worker: %w", workerErr)
		}
		go func() {
			if runErr := worker.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				logger.Error("sync worker stopped", "error", runErr)
			}
		}()
		logger.Info("sync worker started")
	}

	dispatcher, err := inbound.NewDispatcher(service)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}
	handler, err := inbound.NewHandler(dispatcher)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/social/connect", handler)

	addr := strings.TrimSpace(os.Getenv("SOCIAL_CONNECT_HTTP_ADDR"))
	if addr == "" {
		addr = defaultHTTPAddr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func openPersistence(ctx context.Context) (*persistence.Client, error) {
	driver := strings.TrimSpace(os.Getenv("SOCIAL_CONNECT_DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := strings.TrimSpace(os.Getenv("SOCIAL_CONNECT_DB_DSN"))
	if dsn == "" {
		dsn = "file:social-connect.db?_foreign_keys=on"
	}

	var dialect schema.Dialect
	var target string
	switch driver {
	case "postgres":
		dialect = pgdialect.New()
		target = connectmigrations.DialectPostgres
	case "sqlite3":
		dialect = sqlitedialect.New()
		target = connectmigrations.DialectSQLite
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(envPersistenceConfig{driver: driver, server: dsn}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	if _, err := connectmigrations.Register(ctx, func(_ context.Context, migrationDialect string, _ string, fsys fs.FS) error {
		if migrationDialect != target {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, connectmigrations.WithValidationTargets(target)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

type envPersistenceConfig struct {
	driver string
	server string
}

func (c envPersistenceConfig) GetDebug() bool {
	return os.Getenv("SOCIAL_CONNECT_DB_DEBUG") == "true"
}

func (c envPersistenceConfig) GetDriver() string { return c.driver }

func (c envPersistenceConfig) GetServer() string { return c.server }

func (c envPersistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }

func (c envPersistenceConfig) GetOtelIdentifier() string { return "go-social-connect" }

func configFromEnv() core.Config {
	cfg := core.DefaultConfig()
	cfg.Providers = map[string]core.ProviderConfig{}
	for _, platform := range core.KnownPlatforms {
		prefix := "SOCIAL_CONNECT_" + strings.ToUpper(platform)
		clientID := strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID"))
		if clientID == "" {
			continue
		}
		cfg.Providers[platform] = core.ProviderConfig{
			ClientID:     clientID,
			ClientSecret: strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")),
			RedirectURI:  strings.TrimSpace(os.Getenv(prefix + "_REDIRECT_URI")),
		}
	}
	return cfg
}

// sessionVerifierFromEnv maps static bearer tokens to user ids from
// SOCIAL_CONNECT_SESSION_TOKENS ("token=user,token=user"). The embedding
// application normally supplies its own SessionVerifier; this keeps the
// standalone binary usable behind a trusted proxy.
func sessionVerifierFromEnv() core.SessionVerifier {
	raw := strings.TrimSpace(os.Getenv("SOCIAL_CONNECT_SESSION_TOKENS"))
	if raw == "" {
		return nil
	}
	tokens := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	if len(tokens) == 0 {
		return nil
	}
	return staticTokenVerifier{tokens: tokens}
}

type staticTokenVerifier struct {
	tokens map[string]string
}

func (v staticTokenVerifier) Verify(_ context.Context, authorization string) (string, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(authorization), "Bearer "))
	if token == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	userID, ok := v.tokens[token]
	if !ok {
		return "", fmt.Errorf("unknown bearer token")
	}
	return userID, nil
}
