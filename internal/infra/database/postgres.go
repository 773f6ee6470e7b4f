package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/infra/config"
)

const (
	defaultSchema = "shop"
	pingAttempts  = 5
	pingBackoff   = 500 * time.Millisecond
)

// DSN renders a postgres URL for cfg. Credentials are escaped, so passwords
// may contain any character.
func DSN(cfg config.PostgresSettings) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func applyPoolLimits(pc *pgxpool.Config, cfg config.PostgresSettings) {
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
}

// NewPostgresPool opens a pool pinned to the store schema and waits for the
// server to answer, retrying a few times while it starts up.
func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}
	applyPoolLimits(pc, cfg)

	schema := cfg.Schema
	if schema == "" {
		schema = defaultSchema
	}
	params := pc.ConnConfig.RuntimeParams
	if params == nil {
		params = make(map[string]string)
		pc.ConnConfig.RuntimeParams = params
	}
	params["search_path"] = schema + ",public"
	params["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pingWithRetry(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("schema", schema),
		zap.Int32("max_conns", pc.MaxConns),
	)
	return pool, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingWithRetry(ctx context.Context, db pinger, log *zap.Logger) error {
	var err error
	delay := pingBackoff
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.Ping(ctx); err == nil {
			return nil
		}
		if attempt == pingAttempts {
			break
		}
		log.Warn("postgres not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping postgres: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("ping postgres after %d attempts: %w", pingAttempts, err)
}
