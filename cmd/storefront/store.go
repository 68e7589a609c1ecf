package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/asaidimu/go-storefront/catalog"
	"github.com/asaidimu/go-storefront/config"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/memory"
	"github.com/asaidimu/go-storefront/mongodb"
	"github.com/asaidimu/go-storefront/sqlite"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// openStore connects the configured backend and registers the catalog
// schemas. The returned func releases the connection.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*persistence.Store, func(), error) {
	opts := persistence.DefaultInteractorOptions()
	opts.TablePrefix = cfg.TablePrefix

	var (
		interactor persistence.DatabaseInteractor
		closeFn    = func() {}
	)
	switch cfg.Driver {
	case config.DriverMemory:
		interactor = memory.NewInteractor(logger)
	case config.DriverSQLite:
		db, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to reach sqlite database: %w", err)
		}
		interactor = sqlite.NewSQLiteInteractor(db, logger, opts)
		closeFn = func() { _ = db.Close() }
	case config.DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI, 10*time.Second)
		if err != nil {
			return nil, nil, err
		}
		interactor = mongodb.NewInteractor(client.Database(cfg.MongoDatabase), logger, opts)
		closeFn = func() { _ = client.Disconnect(context.Background()) }
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	store := persistence.NewStore(interactor, logger)
	if err := catalog.Register(ctx, store); err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// watchReadFailures logs every failed read on the store's collections.
func watchReadFailures(store *persistence.Store, logger *zap.Logger) {
	for _, name := range store.Collections() {
		c, err := store.Collection(name)
		if err != nil {
			continue
		}
		c.Subscribe(persistence.DocumentReadFailed, func(ctx context.Context, event persistence.PersistenceEvent) error {
			msg := ""
			if event.Error != nil {
				msg = *event.Error
			}
			logger.Warn("Read failed",
				zap.String("collection", event.Collection),
				zap.String("error", msg),
				zap.Any("query", event.Query))
			return nil
		})
	}
}
