package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/becoinapp/becoin-backend/api/controllers"
	"github.com/becoinapp/becoin-backend/api/middleware"
	cartsvc "github.com/becoinapp/becoin-backend/internal/carts"
	checkoutsvc "github.com/becoinapp/becoin-backend/internal/checkout"
	gatewaysvc "github.com/becoinapp/becoin-backend/internal/gateway"
	ledgersvc "github.com/becoinapp/becoin-backend/internal/ledger"
	ordersvc "github.com/becoinapp/becoin-backend/internal/orders"
	walletsvc "github.com/becoinapp/becoin-backend/internal/wallets"
	"github.com/becoinapp/becoin-backend/pkg/config"
	"github.com/becoinapp/becoin-backend/pkg/db"
	"github.com/becoinapp/becoin-backend/pkg/logger"
	"github.com/becoinapp/becoin-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	cartService cartsvc.Service,
	checkoutService checkoutsvc.Service,
	ordersService ordersvc.Service,
	walletService walletsvc.Service,
	ledgerService ledgersvc.Service,
	gatewayService *gatewaysvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", controllers.GatewayWebhook(gatewayService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(cartService, logg))
			r.Put("/", controllers.UpdateCart(cartService, logg))
		})

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderID}", controllers.GetOrder(ordersService, logg))
			r.Post("/{orderID}/preparing", controllers.MarkPreparing(ordersService, logg))
			r.Post("/{orderID}/on-route", controllers.MarkOnRoute(ordersService, logg))
			r.Post("/{orderID}/deliver", controllers.DeliverOrder(ordersService, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(ordersService, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.GetWallet(walletService, logg))
			r.Get("/transactions", controllers.ListWalletTransactions(walletService, ledgerService, logg))
			r.Post("/recharge", controllers.RechargeWallet(walletService, logg))
			r.Post("/withdraw", controllers.WithdrawWallet(walletService, logg))
			r.Post("/transfer", controllers.TransferWallet(walletService, logg))
		})
	})

	return r
}
