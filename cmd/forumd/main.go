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

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"questionforum/pkg/api"
	"questionforum/pkg/config"
	"questionforum/pkg/logging"
	"questionforum/pkg/store"
)

var rootCmd = &cobra.Command{
	Use:          "forumd",
	Short:        "Question forum REST API backed by SQLite",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(cmd.Flags())
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	f := rootCmd.Flags()
	f.String("listen", ":8081", "address to listen on")
	f.String("db", "./questions.db", "path of the SQLite database")
	f.Bool("allow-registration", false, "let new users register")
	f.Duration("token-ttl", 24*time.Hour, "lifetime of issued tokens")
	f.Int("bcrypt-cost", 10, "password hashing cost")
	f.BoolP("verbose", "v", false, "enable debug logging")
}

func serve(ctx context.Context, cfg config.Server, logger *zap.Logger) error {
	secret, err := cfg.Secret(logger)
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.DB,
		store.WithLogger(logger.Named("store")),
		store.WithBcryptCost(cfg.BcryptCost))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if !cfg.AllowRegistration {
		logger.Info("registration is disabled; set FORUM_ALLOW_REGISTRATION=true to let new users sign up")
	}
	apiHandler := api.NewAPI(db, api.Config{
		Secret:            secret,
		TokenTTL:          cfg.TokenTTL,
		AllowRegistration: cfg.AllowRegistration,
	}, logger.Named("api"))

	r := mux.NewRouter()
	r.Use(logging.Middleware(logger))
	apiHandler.Routes(r.PathPrefix("/api").Subrouter())

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting forum API", zap.String("listen", cfg.Listen), zap.String("db", cfg.DB))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
