// Package app wires the webdoc server runtime: config, logging, HTTP routes,
// the chat gateway, and the Postgres-backed stores.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"webdoc/internal/auth"
	"webdoc/internal/chat"
	"webdoc/internal/document"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the webdoc server runtime: it owns HTTP wiring and the chat gateway
// dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	gateway *chat.Gateway
	history http.Handler

	auth *auth.Handler
	docs *document.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, dbPool, dbEnabled, msgStore, err := newChatStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = newEphemeralSecret()
		log.Warn("jwt.secret.ephemeral", "reason", "WEBDOC_JWT_SECRET not set; tokens will not survive restarts")
	}
	tokens, err := auth.NewTokenManager([]byte(secret), cfg.JWTTTL)
	if err != nil {
		return nil, err
	}

	metrics := chat.NewMetrics(prometheus.DefaultRegisterer)
	room := chat.NewRoom(log)
	cache := chat.NewCache(chat.RecentCacheSize)

	gateway := chat.NewGateway(log, room, cache, msgStore, tokens, metrics, chat.GatewayOptions{
		AllowedOrigins: cfg.WSAllowedOrigins,
		DevInsecure:    cfg.WSDevInsecure,
	})
	history := chat.NewHistoryHandler(log, msgStore, metrics)

	var authHandler *auth.Handler
	var docHandler *document.Handler
	if dbEnabled {
		users, err := auth.NewPostgresStore(dbPool)
		if err != nil {
			return nil, err
		}
		authHandler = auth.NewHandler(log, users, tokens)

		docStore, err := document.NewPostgresStore(dbPool)
		if err != nil {
			return nil, err
		}
		docHandler = document.NewHandler(log, docStore, tokens)
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		gateway:   gateway,
		history:   history,
		auth:      authHandler,
		docs:      docHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gateway, a.history, a.auth, a.docs)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func newEphemeralSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is not recoverable in any useful way here.
		panic(err)
	}
	return hex.EncodeToString(b)
}

// newChatStore decides between Postgres-backed persistence and the in-memory
// dev store.
func newChatStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, chat.MessageStore, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, chat.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// The app owns the pool lifecycle; PostgresStore.Close is a no-op.
	msgStore, err := chat.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, err
	}

	return dbStore{pool: pool, msgStore: msgStore}, pool, true, msgStore, nil
}

type dbStore struct {
	pool     *pgxpool.Pool
	msgStore chat.MessageStore
}

func (s dbStore) Close(_ context.Context) error {
	if s.msgStore != nil {
		_ = s.msgStore.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
