package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cobra"
	"github.com/tomxwilliam/studioportal/internal/activity"
	"github.com/tomxwilliam/studioportal/internal/checkout"
	"github.com/tomxwilliam/studioportal/internal/clock"
	"github.com/tomxwilliam/studioportal/internal/config"
	"github.com/tomxwilliam/studioportal/internal/customer"
	"github.com/tomxwilliam/studioportal/internal/domains"
	"github.com/tomxwilliam/studioportal/internal/fxrate"
	"github.com/tomxwilliam/studioportal/internal/hosting"
	"github.com/tomxwilliam/studioportal/internal/invoice"
	"github.com/tomxwilliam/studioportal/internal/migration"
	"github.com/tomxwilliam/studioportal/internal/notification"
	"github.com/tomxwilliam/studioportal/internal/observability"
	"github.com/tomxwilliam/studioportal/internal/pricing"
	"github.com/tomxwilliam/studioportal/internal/providers"
	"github.com/tomxwilliam/studioportal/internal/quote"
	"github.com/tomxwilliam/studioportal/internal/redis"
	"github.com/tomxwilliam/studioportal/internal/scheduler"
	"github.com/tomxwilliam/studioportal/internal/security/vault"
	"github.com/tomxwilliam/studioportal/internal/server"
	"github.com/tomxwilliam/studioportal/internal/ticket"
	"github.com/tomxwilliam/studioportal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "studioportal",
		Short:   "Studio portal CLI",
		Version: readVersionFromEnv(),
	}
	root.AddCommand(newMigrateCmd(), newServeCmd(), newSweepCmd(), newAllCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe()
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the billing sweep worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			runSweep()
			return nil
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run migrations, then start the API server and billing sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runMigrate(); err != nil {
				return err
			}
			runMonolith()
			return nil
		},
	}
}

func runMigrate() error {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	_ = app.Stop(context.Background())
	return nil
}

func runServe() {
	app := fx.New(append(coreModules(), server.Module, fx.Invoke(startSweeper))...)
	app.Run()
}

func runSweep() {
	app := fx.New(append(coreModules(), fx.Invoke(startSweeper))...)
	app.Run()
}

func runMonolith() {
	app := fx.New(append(coreModules(), server.Module, fx.Invoke(startSweeper))...)
	app.Run()
}

// coreModules assembles everything below the HTTP surface. The serve and
// sweep commands differ only in whether the server module sits on top.
func coreModules() []fx.Option {
	return []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		redis.Module,
		vault.Module,
		fxrate.Module,
		providers.Module,
		customer.Module,
		pricing.Module,
		invoice.Module,
		notification.Module,
		activity.Module,
		domains.Module,
		hosting.Module,
		quote.Module,
		ticket.Module,
		checkout.Module,
		scheduler.Module,
	}
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func startSweeper(lc fx.Lifecycle, s *scheduler.Sweeper) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
