// Command storefront serves the storefront collections over HTTP and runs
// one-off catalog queries from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaidimu/go-storefront/api"
	"github.com/asaidimu/go-storefront/catalog"
	"github.com/asaidimu/go-storefront/config"
	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront catalog API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (env STOREFRONT_*)")

	root.AddCommand(newServeCmd(&configPath), newQueryCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the collections over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, seed, logger)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the demo products when the products collection is empty")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, seed bool, logger *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if seed {
		n, err := catalog.Seed(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to seed products: %w", err)
		}
		logger.Info("Seeded products", zap.Int("count", n))
	}
	watchReadFailures(store, logger)

	handler, err := api.NewRouter(store, api.Options{
		Logger:   logger,
		Registry: prometheus.DefaultRegisterer,
		Gatherer: prometheus.DefaultGatherer,
		Query:    cfg.Query.Options(),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newQueryCmd(configPath *string) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "query <collection> [querystring]",
		Short: "Run one list query and print the result as JSON",
		Example: `  storefront query products 'category=speaker&sort=-price'
  storefront query products 'price[lte]=1000&fields=name,price' --seed`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			defer closeStore()
			if seed {
				if _, err := catalog.Seed(ctx, store); err != nil {
					return fmt.Errorf("failed to seed products: %w", err)
				}
			}

			raw := ""
			if len(args) == 2 {
				raw = args[1]
			}
			return runQuery(ctx, store, args[0], raw, cfg.Query.Options(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "insert the demo products first when the products collection is empty")
	return cmd
}

// runQuery runs rawQuery against the named collection and writes the
// result to w.
func runQuery(ctx context.Context, store *persistence.Store, collection, rawQuery string, opts []features.Option, w io.Writer) error {
	c, err := store.Collection(collection)
	if err != nil {
		return err
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("invalid query string: %w", err)
	}

	q := c.Find()
	if err := features.Apply(q, features.FlattenValues(values), opts...); err != nil {
		return err
	}
	result, err := q.Exec(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
