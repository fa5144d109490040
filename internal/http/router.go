package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// maxBodySize caps GraphQL request bodies.
const maxBodySize = 1 << 20

type RouterConfig struct {
	RequestTimeout time.Duration
	// AllowedOrigins for browser clients; empty disables CORS headers.
	AllowedOrigins []string
}

// NewRouter mounts the GraphQL endpoint and the health check, wrapped in
// OpenTelemetry instrumentation. gql serves both GET and POST.
func NewRouter(cfg RouterConfig, gql http.Handler, storage Pinger, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler(storage, log))

	r.With(middleware.RequestSize(maxBodySize)).Handle("/graphql", gql)

	return otelhttp.NewHandler(r, "cart-graphql")
}

func healthHandler(storage Pinger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := storage.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, log)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, log)
	}
}
