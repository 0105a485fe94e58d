package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rohilsavliya09/smarty-dash/internal/app"
	"github.com/rohilsavliya09/smarty-dash/internal/auth"
	"github.com/rohilsavliya09/smarty-dash/internal/config"
	"github.com/rohilsavliya09/smarty-dash/internal/otp"
	"github.com/rohilsavliya09/smarty-dash/internal/router"
	"github.com/rohilsavliya09/smarty-dash/internal/sweeper"
	"github.com/rohilsavliya09/smarty-dash/internal/task"
	"github.com/rohilsavliya09/smarty-dash/internal/user"
	"github.com/rohilsavliya09/smarty-dash/pkg/utilities"
)

func main() {
	// best-effort: real environment wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting smarty-dash api", "env", cfg.Env, "store", cfg.Store, "addr", cfg.HTTPAddr)
	if cfg.InsecureJWTSecret() {
		sugar.Warn("JWT_SECRET not set; using an insecure development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, sugar, true)
	if err != nil {
		sugar.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	sender, err := app.NewSender(cfg, sugar)
	if err != nil {
		sugar.Fatalf("code delivery: %v", err)
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	codes := otp.NewService(stores.Codes, cfg.CodeTTL)
	authSvc := auth.NewService(stores.Users, codes, sender, user.BcryptHasher{Cost: cfg.BcryptCost}, tokens, sugar,
		auth.WithDeliveryTimeout(cfg.DeliveryTimeout))
	taskSvc := task.NewService(stores.Tasks, cfg.TaskDoneTTL)

	// sweepers live as long as the process context
	for _, sw := range []*sweeper.Sweeper{
		sweeper.New("tasks", taskSvc.SweepExpired, sugar,
			sweeper.WithInterval(cfg.SweepInterval), sweeper.WithTimeout(cfg.SweepTimeout)),
		sweeper.New("pending_codes", codes.Purge, sugar,
			sweeper.WithInterval(cfg.SweepInterval), sweeper.WithTimeout(cfg.SweepTimeout)),
	} {
		go sw.Run(ctx)
	}

	handler := router.RegisterRoutes(sugar, cfg.CORSOrigins,
		auth.NewHandler(authSvc, tokens, sugar, cfg.Development()),
		task.NewHandler(taskSvc, tokens, sugar, cfg.Development()),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if stores.DB != nil {
		if err := stores.DB.PingContext(doneCtx); err != nil {
			sugar.Warnf("db ping on shutdown failed: %v", err)
		}
	}

	sugar.Info("goodbye")
}
