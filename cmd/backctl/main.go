package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/database"
	"github.com/proyectoio2/back/internal/infra/logger"
	"github.com/proyectoio2/back/internal/infra/security"
	postgresrepo "github.com/proyectoio2/back/internal/repository/postgres"
	"github.com/proyectoio2/back/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backctl",
		Short:         "Maintenance commands for the store backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newHashPasswordCommand())
	cmd.AddCommand(newPurgeLedgerCommand())
	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	steps := []struct {
		use, short string
		run        func(context.Context, *pgxpool.Pool) error
	}{
		{"up", "Apply every pending migration", database.Migrate},
		{"down", "Roll back the latest migration", database.MigrateDown},
		{"status", "Print the state of every migration", database.MigrationStatus},
	}
	for _, step := range steps {
		cmd.AddCommand(&cobra.Command{
			Use:   step.use,
			Short: step.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(cmd, func(ctx context.Context, _ *config.AppConfig, pool *pgxpool.Pool) error {
					return step.run(ctx, pool)
				})
			},
		})
	}
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the Argon2id hash of a password, read from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				password, err = readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			hasher, err := security.NewPasswordHasher(security.Argon2Config{
				Memory:      cfg.Argon2.Memory,
				Iterations:  cfg.Argon2.Iterations,
				Parallelism: cfg.Argon2.Parallelism,
				SaltLength:  cfg.Argon2.SaltLength,
				KeyLength:   cfg.Argon2.KeyLength,
			})
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func newPurgeLedgerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-ledger",
		Short: "Delete used token records older than the longest token lifetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, func(ctx context.Context, cfg *config.AppConfig, pool *pgxpool.Pool) error {
				repos := postgresrepo.NewRepositories(pool)
				ledger := usecase.NewTokenLedger(repos.Ledger, security.NewTokenDigester(cfg.JWT.SecretKey), map[domain.TokenType]time.Duration{
					domain.TokenTypeAccess:        cfg.JWT.AccessTokenTTL(),
					domain.TokenTypeRefresh:       cfg.JWT.RefreshTokenTTL(),
					domain.TokenTypePasswordReset: cfg.JWT.PasswordResetTokenTTL(),
				})
				removed, err := ledger.Purge(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d used token records\n", removed)
				return err
			})
		},
	}
}

func withPool(cmd *cobra.Command, fn func(context.Context, *config.AppConfig, *pgxpool.Pool) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log.With(zap.String("cmd", cmd.CommandPath())))
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
