package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"snacktrack-backend/internal/metrics"
	"snacktrack-backend/internal/mw"
	"snacktrack-backend/internal/notification"
	"snacktrack-backend/internal/service"
	"snacktrack-backend/internal/store"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	Thresholds      service.Thresholds
	Logger          zerolog.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, webpushOptions *webpush.Options, alerts notification.Dispatcher, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.RequestLogger(opts.Logger), mw.Metrics())
	r.NoRoute(mw.NoRoute())

	handler := NewHandler(s, webpushOptions, alerts, opts.Thresholds)

	// Aggregated reads are cached until a write invalidates them.
	responseCache := mw.NewResponseCache(opts.CacheTTL)
	caching := responseCache.Middleware()

	r.GET("/", handler.Root)
	r.GET("/healthz", handler.Healthz)
	r.GET("/readyz", handler.Readyz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API group
	api := r.Group("/api")
	api.Use(mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst))
	api.Use(responseCache.InvalidateOnWrite("/api/sales", "/api/map"))
	{
		api.GET("/machines", handler.ListMachines)
		api.POST("/machines", handler.CreateMachine)
		api.GET("/machines/:id", handler.GetMachine)
		api.PUT("/machines/:id", handler.UpdateMachine)
		api.DELETE("/machines/:id", handler.DeleteMachine)
		api.PATCH("/machines/:id/slots/:slotCode", handler.UpdateSlot)
		api.PUT("/machines/:id/refill", handler.RefillMachine)
		api.GET("/machines/:id/restock", handler.GetRestockPlan)
		api.POST("/machines/:id/restock", handler.MarkRefilled)

		api.GET("/map/machines", caching, handler.GetMapMachines)

		api.GET("/products", handler.ListProducts)
		api.POST("/products", handler.CreateProduct)
		api.PUT("/products/:id", handler.UpdateProduct)
		api.DELETE("/products/:id", handler.DeleteProduct)

		api.GET("/sales", caching, handler.ListSales)
		api.POST("/sales", handler.CreateSale)
		api.GET("/sales/stats", caching, handler.GetSalesStats)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
