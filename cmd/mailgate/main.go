// Command mailgate runs the mailbox gateway: the JSON-RPC endpoint, the
// session manager and the signed attachment delivery endpoint, in front of a
// demo in-memory mail store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/mailgate/mailgate/gatehttp"
	"github.com/mailgate/mailgate/internal/dispatch"
	"github.com/mailgate/mailgate/internal/logctx"
	"github.com/mailgate/mailgate/internal/mailcap"
	"github.com/mailgate/mailgate/maildata"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
	"github.com/mailgate/mailgate/sessions/memstore"
	"github.com/mailgate/mailgate/sessions/redisstore"
	"github.com/mailgate/mailgate/signedurl"
)

const serverVersion = "0.1.0"

// Config is populated from the environment.
type Config struct {
	ListenAddr     string `env:"LISTEN_ADDR,default=:8080"`
	PublicEndpoint string `env:"PUBLIC_ENDPOINT,default=http://localhost:8080"`

	// Exactly one of SigningSecret and SigningSecretFile must be set. The
	// file variant hot-reloads on change.
	SigningSecret     string `env:"SIGNING_SECRET"`
	SigningSecretFile string `env:"SIGNING_SECRET_FILE"`

	ReadOnly  bool `env:"READ_ONLY,default=false"`
	Stateless bool `env:"STATELESS,default=false"`

	// RedisAddr switches session storage from in-memory to Redis.
	RedisAddr string `env:"REDIS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	secrets, err := newSecretProvider(ctx, cfg, log)
	if err != nil {
		return err
	}
	codec, err := signedurl.New(secrets)
	if err != nil {
		return err
	}

	mail := newDemoStore()
	registry := mailcap.NewRegistry(mailcap.Config{
		Service:        mail,
		Codec:          codec,
		PublicEndpoint: cfg.PublicEndpoint,
	})

	var store sessions.Store
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(ctx, redisstore.Config{Addr: cfg.RedisAddr})
		if err != nil {
			return fmt.Errorf("redis session store: %w", err)
		}
		defer rs.Close()
		store = rs
		log.Info("sessions.store.redis", slog.String("addr", cfg.RedisAddr))
	} else {
		store = memstore.New()
		log.Info("sessions.store.memory")
	}
	manager := sessions.NewManager(store, sessions.WithLogger(log))

	dispatcher := dispatch.New(registry, mcp.ImplementationInfo{
		Name:    "mailgate",
		Version: serverVersion,
	}, dispatch.WithLogger(log))

	authenticator := maildata.NewAuthenticator(mail, cfg.ReadOnly)

	var handlerOpts []gatehttp.Option
	handlerOpts = append(handlerOpts, gatehttp.WithLogger(log))
	if cfg.Stateless {
		handlerOpts = append(handlerOpts, gatehttp.WithStateless())
	}
	handler := gatehttp.New(authenticator, manager, dispatcher, codec, mail, handlerOpts...)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.start", slog.String("addr", cfg.ListenAddr), slog.Bool("read_only", cfg.ReadOnly), slog.Bool("stateless", cfg.Stateless))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server.shutdown.start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server.shutdown.ok")
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var inner slog.Handler
	if strings.EqualFold(format, "text") {
		inner = slog.NewTextHandler(os.Stderr, opts)
	} else {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(logctx.Handler{Handler: inner})
}

func newSecretProvider(ctx context.Context, cfg Config, log *slog.Logger) (signedurl.SecretProvider, error) {
	switch {
	case cfg.SigningSecret != "" && cfg.SigningSecretFile != "":
		return nil, fmt.Errorf("config: SIGNING_SECRET and SIGNING_SECRET_FILE are mutually exclusive")
	case cfg.SigningSecretFile != "":
		return signedurl.NewFileSecret(ctx, cfg.SigningSecretFile, log)
	case cfg.SigningSecret != "":
		return signedurl.StaticSecret(cfg.SigningSecret), nil
	default:
		return nil, fmt.Errorf("config: one of SIGNING_SECRET or SIGNING_SECRET_FILE is required")
	}
}

// newDemoStore seeds the in-memory mail store with a small demo account so
// the binary is explorable out of the box. Credential: "demo-token".
func newDemoStore() *maildata.MemStore {
	store := maildata.NewMemStore()
	store.AddAccount("demo-token", maildata.Account{Identity: "demo@example.com"})
	store.AddMailbox("demo@example.com", maildata.Mailbox{Path: "INBOX", Name: "Inbox"})
	store.AddMailbox("demo@example.com", maildata.Mailbox{Path: "Archive", Name: "Archive"})
	store.AddMessage("demo@example.com", maildata.Message{
		MessageSummary: maildata.MessageSummary{
			ID:      "m-welcome",
			Mailbox: "INBOX",
			Subject: "Welcome to mailgate",
			From:    "ops@example.com",
			To:      []string{"demo@example.com"},
			Date:    time.Now().Add(-time.Hour),
		},
		Body: "This demo account is backed by an in-memory store.\nTry the listMailboxes and listMessages tools.",
	}, nil)
	return store
}
