package cmd

import (
	"context"
	"errors"
	"expvar"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gerritevents/internal"
	"gerritevents/pkg/api"
	"gerritevents/pkg/storage"
	"gerritevents/pkg/storage/refupdates"
	"gerritevents/webhook"

	"github.com/spf13/cobra"
)

const (
	rateLimitTTL    = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Gerrit webhook receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, configPath, internal.NewLogger("server"))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	return cmd
}

func serve(ctx context.Context, configPath string, logger *log.Logger) error {
	config, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ruleEngine, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  config.Rules,
		Strict: config.RulesStrict,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var store storage.RefUpdateStore
	if config.Storage.Enabled() {
		opened, err := refupdates.Open(refupdates.Config{
			Driver:      config.Storage.Driver,
			DSN:         config.Storage.DSN,
			Dialect:     config.Storage.Dialect,
			Table:       config.Storage.Table,
			AutoMigrate: config.Storage.AutoMigrate,
		})
		if err != nil {
			return err
		}
		defer opened.Close()
		store = opened
	}

	handler, err := newServerHandler(config, ruleEngine, publisher, store, logger)
	if err != nil {
		return err
	}

	addr := config.Server.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       millis(config.Server.ReadTimeoutMS),
		WriteTimeout:      millis(config.Server.WriteTimeoutMS),
		IdleTimeout:       millis(config.Server.IdleTimeoutMS),
		ReadHeaderTimeout: millis(config.Server.ReadHeaderMS),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	return nil
}

// newServerHandler mounts the Gerrit endpoint, the ref update API when a
// store is given, and the expvar metrics page.
func newServerHandler(config internal.Config, rules *internal.RuleEngine, publisher internal.Publisher, store storage.RefUpdateStore, logger *log.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	if config.Gerrit.Enabled {
		gerritHandler, err := webhook.NewGerritHandler(rules, publisher, logger, config.Server.MaxBodyBytes)
		if err != nil {
			return nil, err
		}
		if store != nil {
			gerritHandler.UseRefUpdateStore(store)
		}
		limited := internal.NewRateLimitHandler(gerritHandler, config.Server.RateLimitRPS, config.Server.RateLimitBurst, rateLimitTTL)
		mux.Handle(config.Gerrit.Path, limited)
		logger.Printf("gerrit webhook enabled on %s", config.Gerrit.Path)
	} else {
		logger.Printf("gerrit webhook disabled")
	}

	if store != nil {
		apiPath := strings.TrimSuffix(config.Storage.APIPath, "/")
		mux.Handle(apiPath, &api.RefUpdatesHandler{Store: store, Logger: logger})
		mux.Handle(apiPath+"/latest", &api.LatestRefUpdateHandler{Store: store, Logger: logger})
		logger.Printf("ref update api enabled on %s", apiPath)
	}

	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}
	return mux, nil
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
