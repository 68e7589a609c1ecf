// Package api exposes the storefront collections over HTTP. List requests
// run the query-feature pipeline over the URL's query string.
package api

import (
	"fmt"
	"net/http"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options configures NewRouter. Zero values fall back to a no-op logger and
// the default Prometheus registry.
type Options struct {
	Logger   *zap.Logger
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	// Query tunes the pipeline defaults for list requests.
	Query []features.Option
}

type handler struct {
	store  *persistence.Store
	logger *zap.Logger
	query  []features.Option
}

type listResponse struct {
	Status  string   `json:"status"`
	Results int      `json:"results"`
	Data    listData `json:"data"`
}

type listData struct {
	Docs []schema.Document `json:"docs"`
}

type getResponse struct {
	Status string  `json:"status"`
	Data   getData `json:"data"`
}

type getData struct {
	Doc schema.Document `json:"doc"`
}

// NewRouter builds the HTTP handler for store.
func NewRouter(store *persistence.Store, opts Options) (http.Handler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics, err := NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	h := &handler{store: store, logger: logger, query: opts.Query}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"collections": store.Collections(),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/{collection}", func(r chi.Router) {
		r.Use(metrics.Middleware)
		r.Get("/", Catch(logger, h.list))
		r.Get("/{id}", Catch(logger, h.get))
	})
	r.NotFound(Catch(logger, func(w http.ResponseWriter, r *http.Request) error {
		return NewAppError(fmt.Sprintf("can't find %s on this server", r.URL.Path), http.StatusNotFound)
	}))
	return r, nil
}

func (h *handler) collection(r *http.Request) (*persistence.Collection, error) {
	name := chi.URLParam(r, "collection")
	c, err := h.store.Collection(name)
	if err != nil {
		appErr := NewAppError(fmt.Sprintf("no collection named %q", name), http.StatusNotFound)
		appErr.Err = err
		return nil, appErr
	}
	return c, nil
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) error {
	c, err := h.collection(r)
	if err != nil {
		return err
	}
	q := c.Find()
	if err := features.Apply(q, features.FlattenValues(r.URL.Query()), h.query...); err != nil {
		return err
	}
	result, err := q.Exec(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listResponse{
		Status:  "success",
		Results: result.Count,
		Data:    listData{Docs: result.Data},
	})
	return nil
}

// get looks a document up by the schema identifier. `fields` applies as it
// does for lists.
func (h *handler) get(w http.ResponseWriter, r *http.Request) error {
	c, err := h.collection(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "id")
	q := c.Find()
	q.Where(c.Schema().IdentifierField()).Eq(id)
	q.Limit(1)
	features.New(q, features.FlattenValues(r.URL.Query()), h.query...).LimitFields()

	result, err := q.Exec(r.Context())
	if err != nil {
		return err
	}
	if result.Count == 0 {
		return NewAppError(fmt.Sprintf("no document found with id %s", id), http.StatusNotFound)
	}
	writeJSON(w, http.StatusOK, getResponse{
		Status: "success",
		Data:   getData{Doc: result.Data[0]},
	})
	return nil
}
