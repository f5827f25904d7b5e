/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers (rate limit key)
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Secure:     Security headers (unrolled/secure)
  6. Metrics:    Request count and latency per route
  7. CORS:       Cross-origin requests for frontend
  8. RateLimit:  Per-IP request budget (httprate)

  /api additionally runs Authenticate, and POST /api/usage runs
  Idempotent.

ROUTE GROUPS:
  /healthz              Liveness + store ping (public)
  /metrics              Prometheus scrape (public)
  /api/items/*          Inventory items, lots, stock
  /api/lots/*           Lot edits
  /api/usage/*          Usage recording
  /api/batches/*        Batches, harvest, costs, diary, CTP
  /api/costs/*          Cost deletes
  /api/diary/*          Diary deletes
  /api/profile          Owner settings

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Bearer token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/Cronanaut/veronagrow/idempotency"
	"github.com/Cronanaut/veronagrow/metrics"
)

// RouterConfig holds the middleware dependencies of NewRouter.
type RouterConfig struct {
	Auth               Authenticator
	AllowedOrigins     []string
	RateLimitPerMinute int
	// Production enables HTTPS redirects.
	Production  bool
	Metrics     *metrics.Metrics
	Idempotency idempotency.Store
	// Health is called by /healthz; nil always reports ok.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !cfg.Production,
	})

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(secureMiddleware.Handler)
	r.Use(cfg.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader},
		ExposedHeaders:   []string{ReplayedHeader},
		AllowCredentials: false,
	}))
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Post("/water", h.EnsureWaterItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
			r.Get("/{id}/on-hand", h.GetOnHand)
			r.Get("/{id}/usage", h.ListItemUsage)
			r.Get("/{id}/lots", h.ListLots)
			r.Post("/{id}/lots", h.ReceiveLot)
		})

		// Lot routes
		r.Route("/lots", func(r chi.Router) {
			r.Put("/{id}", h.UpdateLot)
			r.Delete("/{id}", h.DeleteLot)
		})

		// Usage routes
		r.Route("/usage", func(r chi.Router) {
			r.With(Idempotent(cfg.Idempotency, cfg.Logger)).Post("/", h.RecordUsage)
			r.Delete("/{id}", h.DeleteUsage)
			r.Post("/{id}/diary", h.RetryDiaryLink)
		})

		// Batch routes
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Post("/", h.CreateBatch)
			r.Get("/{id}", h.GetBatch)
			r.Put("/{id}", h.UpdateBatch)
			r.Delete("/{id}", h.DeleteBatch)
			r.Post("/{id}/harvest", h.RecordHarvest)
			r.Get("/{id}/usage", h.ListBatchUsage)
			r.Post("/{id}/recompute", h.RecomputeBatch)
			r.Get("/{id}/costs", h.ListCosts)
			r.Post("/{id}/costs", h.AddCost)
			r.Get("/{id}/diary", h.ListDiary)
			r.Post("/{id}/diary", h.AddDiaryEntry)
		})

		r.Delete("/costs/{id}", h.DeleteCost)
		r.Delete("/diary/{id}", h.DeleteDiaryEntry)

		// Profile routes
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
	})

	return r
}
