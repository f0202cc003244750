package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/counterpos/api/controllers"
	"github.com/angelmondragon/counterpos/api/middleware"
	"github.com/angelmondragon/counterpos/internal/catalog"
	"github.com/angelmondragon/counterpos/internal/checkout"
	"github.com/angelmondragon/counterpos/internal/promotions"
	"github.com/angelmondragon/counterpos/internal/sales"
	"github.com/angelmondragon/counterpos/pkg/config"
	"github.com/angelmondragon/counterpos/pkg/logger"
	pkgredis "github.com/angelmondragon/counterpos/pkg/redis"
)

// Terminals is the per-terminal registry: one cart and one login state each.
type Terminals interface {
	controllers.Carts
	controllers.TerminalState
}

// Dependencies carries everything the router hands to controllers. Redis
// backed stores are optional; leave them nil to run without idempotency
// replay or session-open throttling.
type Dependencies struct {
	Ready []controllers.Dependency

	Sessions   controllers.SessionManager
	Terminals  Terminals
	Products   catalog.Repository
	Catalog    catalog.Service
	Checkout   checkout.Service
	Sales      sales.Service
	Stock      controllers.StockLedger
	Customers  controllers.CustomerAccounts
	Promotions promotions.Service

	Idempotency pkgredis.IdempotencyStore
	RateLimiter middleware.RateLimiterStore
	Metrics     prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	sessionOpenPolicy := middleware.NewRateLimitPolicy(
		"session_open",
		cfg.RateLimit.SessionOpenWindow,
		cfg.RateLimit.SessionOpenTerminalLimit,
		cfg.RateLimit.SessionOpenCashierLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready...))
	})

	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	var (
		carts     controllers.Carts
		terminals controllers.TerminalState
		quoter    controllers.Quoter
		checkouts controllers.Checkouts
	)
	if deps.Terminals != nil {
		carts = deps.Terminals
		terminals = deps.Terminals
	}
	if deps.Checkout != nil {
		quoter = deps.Checkout
		checkouts = deps.Checkout
	}
	var products controllers.ProductReader
	if deps.Products != nil {
		products = deps.Products
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Terminal(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, cfg.Checkout.IdempotencyTTL, logg))

		r.Route("/sessions", func(r chi.Router) {
			r.With(middleware.RateLimit(sessionOpenPolicy, deps.RateLimiter, logg)).Post("/", controllers.SessionOpen(deps.Sessions, terminals, logg))
			r.Get("/", controllers.SessionList(deps.Sessions, logg))
			r.Get("/current", controllers.SessionCurrent(deps.Sessions, terminals, logg))
			r.Get("/{sessionID}/stats", controllers.SessionStats(deps.Sessions, logg))
			r.Post("/{sessionID}/close", controllers.SessionClose(deps.Sessions, terminals, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(carts, quoter, logg))
			r.Delete("/", controllers.CartClear(carts, quoter, logg))
			r.Post("/items", controllers.CartAddItem(carts, products, quoter, logg))
			r.Post("/items/{productID}/decrement", controllers.CartDecrementItem(carts, quoter, logg))
			r.Put("/items/{productID}/discount", controllers.CartSetDiscount(carts, quoter, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(carts, quoter, logg))
		})

		r.Post("/checkout", controllers.Checkout(checkouts, carts, deps.Sessions, terminals, logg))

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", controllers.SalesList(deps.Sales, logg))
			r.Get("/{saleID}", controllers.SaleGet(deps.Sales, logg))
			r.Post("/{saleID}/refund", controllers.SaleRefund(deps.Sales, logg))
			r.Post("/{saleID}/void", controllers.SaleVoid(deps.Sales, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.ProductCreate(deps.Catalog, logg))
			r.Get("/", controllers.ProductList(deps.Products, logg))
			r.Get("/lookup", controllers.ProductLookup(deps.Products, logg))
			r.Get("/{productID}", controllers.ProductGet(deps.Products, logg))
			r.Put("/{productID}/status", controllers.ProductSetStatus(deps.Catalog, logg))
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/low", controllers.StockLow(deps.Products, logg))
			r.Post("/{productID}/receive", controllers.StockReceive(deps.Stock, logg))
			r.Post("/{productID}/remove", controllers.StockRemove(deps.Stock, logg))
			r.Post("/{productID}/count", controllers.StockCount(deps.Stock, logg))
			r.Get("/{productID}/movements", controllers.StockHistory(deps.Stock, logg))
			r.Get("/{productID}/verify", controllers.StockVerify(deps.Stock, logg))
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", controllers.CustomerCreate(deps.Customers, logg))
			r.Get("/", controllers.CustomerList(deps.Customers, logg))
			r.Get("/{customerID}", controllers.CustomerGet(deps.Customers, logg))
			r.Get("/{customerID}/transactions", controllers.CustomerTransactions(deps.Customers, logg))
		})

		r.Route("/promotions", func(r chi.Router) {
			r.Post("/", controllers.PromotionCreate(deps.Promotions, logg))
			r.Get("/", controllers.PromotionList(deps.Promotions, logg))
			r.Get("/{promotionID}", controllers.PromotionGet(deps.Promotions, logg))
			r.Put("/{promotionID}/status", controllers.PromotionSetStatus(deps.Promotions, logg))
		})
	})

	return r
}
