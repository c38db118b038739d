package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/greenline-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/greenline-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/greenline-backend/api/controllers/orders"
	"github.com/angelmondragon/greenline-backend/api/middleware"
	"github.com/angelmondragon/greenline-backend/internal/cart"
	"github.com/angelmondragon/greenline-backend/internal/orders"
	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/metrics"
	"github.com/angelmondragon/greenline-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil Redis-backed stores
// switch idempotency and rate limiting off, which only tests rely on.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           controllers.Pinger
	Idempotency     redis.IdempotencyStore
	RateLimiter     redis.RateLimiter
	Carts           cart.Service
	Orders          orders.Service
	CheckoutMetrics ordercontrollers.CheckoutMetrics
	HTTPMetrics     *metrics.HTTPMetrics
	MetricsHandler  http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	checkoutIdempotency := middleware.Idempotency(middleware.IdempotencyPolicy{
		TTL:      cfg.Checkout.IdempotencyTTL,
		Required: true,
	}, deps.Idempotency, logg)
	retryIdempotency := middleware.Idempotency(middleware.IdempotencyPolicy{
		TTL: cfg.Checkout.IdempotencyTTL,
	}, deps.Idempotency, logg)
	checkoutLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "checkout",
		Window: cfg.Checkout.RateLimitWindow,
		Limit:  cfg.Checkout.RateLimitMax,
	}, deps.RateLimiter, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Carts, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Carts, logg))
			r.Get("/count", cartcontrollers.CartCount(deps.Carts, logg))
			r.Get("/validate", cartcontrollers.CartValidate(deps.Carts, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Carts, logg))
			r.Patch("/items/{productId}", cartcontrollers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(deps.Carts, logg))
			r.Post("/merge", cartcontrollers.CartMerge(deps.Carts, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Use(checkoutLimit, checkoutIdempotency)
			r.Post("/", ordercontrollers.Checkout(deps.Orders, deps.CheckoutMetrics, logg))
			r.Post("/text-order", ordercontrollers.TextOrder(deps.Orders, deps.CheckoutMetrics, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderNumber}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(retryIdempotency).Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleStaff, enums.ActorRoleAdmin))
			r.With(retryIdempotency).Patch("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(deps.Orders, logg))
		})
	})

	return r
}
