package api

import (
	"errors"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/mw"
	"snacktrack-backend/internal/notification"
	"snacktrack-backend/internal/service"
	"snacktrack-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	webpush  *webpush.Options
	machines *service.MachineService
	products *service.ProductService
	sales    *service.SaleService
	restock  *service.RestockService
	stats    *service.StatsService
}

// NewHandler creates a new API handler and the services behind it. A nil
// dispatcher disables restock alerts.
func NewHandler(s store.Store, webpushOptions *webpush.Options, alerts notification.Dispatcher, thresholds service.Thresholds) *Handler {
	machines := service.NewMachineService(s, alerts, thresholds)
	sales := service.NewSaleService(s, alerts, thresholds)
	return &Handler{
		store:    s,
		webpush:  webpushOptions,
		machines: machines,
		products: service.NewProductService(s),
		sales:    sales,
		restock:  service.NewRestockService(machines, sales),
		stats:    service.NewStatsService(s),
	}
}

// bindJSON decodes the request body into dst. Malformed JSON is a
// BAD_REQUEST; failed binding rules are a VALIDATION_ERROR.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fe.Field()
		}
		respondError(c, apperr.Validation("missing or invalid fields: %s", strings.Join(fields, ", ")))
		return false
	}
	respondError(c, apperr.BadRequest("invalid request body: "+err.Error()))
	return false
}

func respondError(c *gin.Context, err error) {
	mw.AbortWithError(c, err)
}
