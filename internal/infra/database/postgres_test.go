package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/proyectoio2/back/internal/infra/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.PostgresSettings{
		Host:     "db",
		Port:     5432,
		User:     "shop",
		Password: "p@ss:w/rd",
		Database: "store",
	})

	if !strings.HasSuffix(dsn, "@db:5432/store?sslmode=disable") {
		t.Fatalf("unexpected dsn %q", dsn)
	}

	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if pc.ConnConfig.Password != "p@ss:w/rd" || pc.ConnConfig.User != "shop" {
		t.Fatalf("credentials did not survive: %q %q", pc.ConnConfig.User, pc.ConnConfig.Password)
	}
}

type flakyDB struct {
	failures int
	calls    int
}

func (f *flakyDB) Ping(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetryRecovers(t *testing.T) {
	db := &flakyDB{failures: 1}
	if err := pingWithRetry(context.Background(), db, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if db.calls != 2 {
		t.Fatalf("expected two pings, got %d", db.calls)
	}
}

func TestPingWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	db := &flakyDB{failures: pingAttempts}
	err := pingWithRetry(ctx, db, zaptest.NewLogger(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if db.calls != 1 {
		t.Fatalf("expected a single ping before giving up, got %d", db.calls)
	}
}

func TestMigrationSchemaFollowsSearchPath(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@127.0.0.1:1/db?search_path=store_v2,public": "store_v2",
		"postgres://u:p@127.0.0.1:1/db":                             "",
	}
	for dsn, want := range cases {
		pool, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			t.Fatalf("pool for %q: %v", dsn, err)
		}
		got := migrationSchema(pool)
		pool.Close()
		if got != want {
			t.Fatalf("%q: expected schema %q, got %q", dsn, want, got)
		}
	}
}
