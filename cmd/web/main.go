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

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"questionforum/pkg/client"
	"questionforum/pkg/config"
	"questionforum/pkg/handlers"
	"questionforum/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "web",
	Short: "Question forum web frontend",
	Long: `web serves the question forum pages. It keeps no data of its own;
every page is backed by the forum API at --api-url.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadWeb(cmd.Flags())
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
	f.String("listen", ":8080", "address to listen on")
	f.String("api-url", "http://localhost:8081/api", "base URL of the forum API")
	f.Bool("secure-cookies", false, "mark cookies Secure (serve over HTTPS)")
	f.Int("questions-per-page", 10, "questions per page")
	f.Int("answers-per-page", 5, "answers per page")
	f.Duration("view-ttl", 30*time.Minute, "drop browser state idle for longer than this")
	f.BoolP("verbose", "v", false, "enable debug logging")
}

func serve(ctx context.Context, cfg config.Web, logger *zap.Logger) error {
	sessionKey, csrfKey, err := cfg.Keys(logger)
	if err != nil {
		return err
	}

	store := sessions.NewCookieStore(sessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	app := &handlers.Application{
		API:              client.New(cfg.APIURL, client.WithLogger(logger.Named("client"))),
		Store:            store,
		Views:            handlers.NewViewRegistry(cfg.ViewTTL),
		Log:              logger,
		QuestionsPerPage: cfg.QuestionsPerPage,
		AnswersPerPage:   cfg.AnswersPerPage,
	}
	if err := app.LoadTemplates(); err != nil {
		return err
	}

	protect := csrf.Protect(csrfKey,
		csrf.Secure(cfg.SecureCookies),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
	)
	var h http.Handler = protect(app.Routes())
	if !cfg.SecureCookies {
		// csrf treats every request as HTTPS unless it is marked otherwise.
		next := h
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting web frontend", zap.String("listen", cfg.Listen), zap.String("api", cfg.APIURL))
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
