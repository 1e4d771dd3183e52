package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/icuward/internal/config"
	"github.com/ehr/icuward/internal/platform/auth"
	"github.com/ehr/icuward/internal/platform/bedside"
	"github.com/ehr/icuward/internal/platform/db"
	"github.com/ehr/icuward/internal/platform/sandbox"
	"github.com/ehr/icuward/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "icuward-server",
		Short: "ICU ward risk classification and bed allocation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetBool("seed")
			return runServer(seed)
		},
	}
	cmd.Flags().Bool("seed", false, "load the demo ward on startup when the store is empty")
	return cmd
}

func runServer(seed bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	if seed {
		res, err := a.Seeder().Seed(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("demo ward not loaded")
		} else {
			logger.Info().Int("beds", res.Beds).Int("patients", res.Patients).Msg("demo ward loaded")
		}
	}

	e := a.Router()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.Store).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if cfg.MQTTBrokerURL != "" {
		sub := bedside.NewSubscriber(bedside.Config{
			BrokerURL: cfg.MQTTBrokerURL,
			Topic:     cfg.MQTTTopic,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			QoS:       1,
		}, a.monitor, logger)
		g.Go(func() error { return sub.Run(gctx) })
	}

	if cfg.SimulatorEnabled {
		g.Go(func() error { return a.simulator.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// migrationFiles returns the embedded migrations unless dir overrides them.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("dir", "", "read migrations from this directory instead of the embedded set")

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for migrations")
		}
		dir, _ := cmd.Flags().GetString("dir")

		ctx := context.Background()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2, 1)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrationFiles(dir)))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%-8s %-30s %-8s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					state, at := "pending", ""
					if s.Applied {
						state = "applied"
						at = s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Printf("%-8d %-30s %-8s %s\n", s.Version, s.Name, state, at)
				}
				return nil
			})
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo ward into the Postgres store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("seed writes to postgres; use \"serve --seed\" with the memory store")
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			var res *sandbox.SeedResult
			err = db.RunInTx(ctx, a.pool, func(ctx context.Context) error {
				res, err = a.Seeder().Seed(ctx)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d beds, %d patients, %d readings, %d alerts\n",
				res.Beds, res.Patients, res.Readings, res.Alerts)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed JWT for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, _ := cmd.Flags().GetString("sub")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := issueToken(cfg, sub, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("sub", "dev-user", "token subject")
	cmd.Flags().StringSlice("role", []string{auth.RoleDoctor}, "roles to grant (admin, doctor, nurse)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func issueToken(cfg *config.Config, sub string, roles []string, ttl time.Duration) (string, error) {
	for _, r := range roles {
		switch r {
		case auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse:
		default:
			return "", fmt.Errorf("unknown role %q (want %s)", r,
				strings.Join([]string{auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse}, ", "))
		}
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	jwtCfg, err := jwtConfig(cfg)
	if err != nil {
		return "", err
	}
	return auth.IssueToken(jwtCfg, sub, roles, ttl)
}
