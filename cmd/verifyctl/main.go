// Command verifyctl runs maintenance tasks against the verification
// storage (postgres or file): schema migrations, seeding accounts and
// inspecting status.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"

	"github.com/tendant/simple-verify/pkg/audit"
	"github.com/tendant/simple-verify/pkg/config"
	"github.com/tendant/simple-verify/pkg/db"
	"github.com/tendant/simple-verify/pkg/emailverification"
	"github.com/tendant/simple-verify/pkg/identity"
	"github.com/tendant/simple-verify/pkg/logging"
	"github.com/tendant/simple-verify/pkg/ratelimit"
)

func main() {
	cmd := &cli.Command{
		Name:  "verifyctl",
		Usage: "Manage email verification storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Path to a .env file to load before reading the environment",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply or roll back the schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply all pending migrations",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return runMigrate(cmd, "up")
						},
					},
					{
						Name:  "down",
						Usage: "Roll back all migrations",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							return runMigrate(cmd, "down")
						},
					},
				},
			},
			{
				Name:  "seed-user",
				Usage: "Create an unverified account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Account email address"},
				},
				Action: runSeedUser,
			},
			{
				Name:  "status",
				Usage: "Print the verification status of an account as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Account email address"},
				},
				Action: runStatus,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	// These commands only make sense against durable storage.
	if os.Getenv("VERIFY_PERSISTENCE") == "" {
		os.Setenv("VERIFY_PERSISTENCE", "postgres")
	}
	cfg, err := config.Load(cmd.String("env-file"))
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

func runMigrate(cmd *cli.Command, direction string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Verification.Persistence != "postgres" {
		return fmt.Errorf("migrations apply to postgres persistence only, got %q", cfg.Verification.Persistence)
	}
	return db.Migrate(cfg.Database.URL, direction)
}

// backend holds the stores for the configured persistence type.
type backend struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	directory identity.Directory
	auditLog  audit.Log
	store     emailverification.TokenStore
}

func openBackend(ctx context.Context, cmd *cli.Command) (*backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	v := cfg.Verification
	if v.Persistence == "memory" {
		return nil, errors.New("memory persistence has nothing to inspect; use postgres or file")
	}

	b := &backend{cfg: cfg}
	if v.Persistence == "postgres" {
		b.pool, err = db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
	}

	if b.directory, err = identity.NewDirectory(v.Persistence, identity.RepositoryConfig{Pool: b.pool, DataDir: v.DataDir}); err != nil {
		b.Close()
		return nil, err
	}
	if b.auditLog, err = audit.NewLog(v.Persistence, audit.RepositoryConfig{Pool: b.pool, DataDir: v.DataDir}); err != nil {
		b.Close()
		return nil, err
	}
	if b.store, err = emailverification.NewTokenStore(v.Persistence, emailverification.RepositoryConfig{Pool: b.pool, DataDir: v.DataDir}, v.StoreOptions()...); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func runSeedUser(ctx context.Context, cmd *cli.Command) error {
	b, err := openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	seeder, ok := b.directory.(identity.Seeder)
	if !ok {
		return fmt.Errorf("%s directory cannot create users", b.cfg.Verification.Persistence)
	}
	user, err := seeder.Insert(ctx, cmd.String("email"))
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, user.ID)
	return nil
}

type statusOutput struct {
	Email          string        `json:"email"`
	Verified       bool          `json:"verified"`
	RemainingSends int           `json:"remainingSends"`
	RecentActions  []audit.Entry `json:"recentActions"`
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	b, err := openBackend(ctx, cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	v := b.cfg.Verification
	service := emailverification.NewService(
		b.store,
		b.directory,
		b.auditLog,
		ratelimit.NewSendLimiter(b.auditLog, v.LimiterOptions()...),
		v.ServiceOptions(b.cfg.Server.FrontendURL)...,
	)

	status, err := service.GetStatus(ctx, cmd.String("email"))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(statusOutput{
		Email:          status.Email,
		Verified:       status.Verified,
		RemainingSends: status.RemainingSends,
		RecentActions:  status.RecentActions,
	})
}
