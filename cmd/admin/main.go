package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rohilsavliya09/smarty-dash/internal/app"
	"github.com/rohilsavliya09/smarty-dash/internal/config"
	"github.com/rohilsavliya09/smarty-dash/internal/otp"
	"github.com/rohilsavliya09/smarty-dash/internal/task"
	"github.com/rohilsavliya09/smarty-dash/pkg/database"
	"github.com/rohilsavliya09/smarty-dash/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "smarty-admin",
		Short:         "Maintenance commands for the smarty-dash backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}

	var at string
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete completed tasks and pending codes past their expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			return runSweep(cmd.Context(), now)
		},
	}
	sweepCmd.Flags().StringVar(&at, "at", "", "Sweep as of this RFC3339 instant instead of now")

	root.AddCommand(migrateCmd, sweepCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.SugaredLogger, error) {
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, lg.Sugar(), nil
}

func runMigrate(ctx context.Context) error {
	cfg, sugar, err := setup()
	if err != nil {
		return err
	}
	defer sugar.Sync()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	sugar.Infow("migrations applied")
	return nil
}

func runSweep(ctx context.Context, now time.Time) error {
	cfg, sugar, err := setup()
	if err != nil {
		return err
	}
	defer sugar.Sync()

	stores, err := app.OpenStores(ctx, cfg, sugar, false)
	if err != nil {
		return err
	}
	defer stores.Close()

	tasks, err := task.NewService(stores.Tasks, cfg.TaskDoneTTL).SweepExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep tasks: %w", err)
	}
	codes, err := otp.NewService(stores.Codes, cfg.CodeTTL).Purge(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep pending codes: %w", err)
	}
	fmt.Printf("removed %d tasks, %d pending codes\n", tasks, codes)
	return nil
}
