// Package persistence binds schemas to a storage engine. A Store keeps one
// Collection per registered schema; collections run reads and writes
// through an Executor and report them as events.
package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

// Store is a registry of collections over a single interactor.
type Store struct {
	interactor  DatabaseInteractor
	executor    *Executor
	logger      *zap.Logger
	collections map[string]*Collection
	mu          sync.RWMutex
}

// NewStore creates an empty store over interactor.
func NewStore(interactor DatabaseInteractor, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		interactor:  interactor,
		executor:    NewExecutor(interactor, logger),
		logger:      logger,
		collections: make(map[string]*Collection),
	}
}

// Register makes sc available as a collection, creating its storage when
// it does not exist yet. Registering a name twice replaces the schema.
func (s *Store) Register(ctx context.Context, sc *schema.SchemaDefinition) (*Collection, error) {
	exists, err := s.interactor.CollectionExists(ctx, sc.Name)
	if err != nil {
		return nil, fmt.Errorf("error looking up collection %s: %w", sc.Name, err)
	}
	if !exists {
		if err := s.interactor.CreateCollection(ctx, sc); err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", sc.Name, err)
		}
		s.logger.Info("Created collection", zap.String("collection", sc.Name))
	}

	collection, err := NewCollection(sc, s.executor, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.collections[sc.Name] = collection
	s.mu.Unlock()
	return collection, nil
}

// Collection returns the collection registered under name.
func (s *Store) Collection(name string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// Collections returns the registered collection names in lexical order.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
