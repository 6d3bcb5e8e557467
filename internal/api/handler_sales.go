package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/service"
)

type saleLineRequest struct {
	ProductID     string           `json:"productId"`
	Quantity      *int             `json:"quantity" binding:"required"`
	ProductProfit *decimal.Decimal `json:"productProfit" binding:"required"`
}

type saleRequest struct {
	MachineID *string           `json:"machineId"`
	Date      string            `json:"date"`
	Products  []saleLineRequest `json:"products" binding:"dive"`
	AllProfit *decimal.Decimal  `json:"allProfit" binding:"required"`
}

// ListSales handles GET /api/sales. ?machineId= filters by machine.
func (h *Handler) ListSales(c *gin.Context) {
	sales, err := h.sales.List(c.Request.Context(), c.Query("machineId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

// CreateSale handles POST /api/sales.
func (h *Handler) CreateSale(c *gin.Context) {
	var req saleRequest
	if !bindJSON(c, &req) {
		return
	}

	lines := make([]model.SaleLine, len(req.Products))
	for i, l := range req.Products {
		lines[i] = model.SaleLine{
			ProductID:     l.ProductID,
			Quantity:      *l.Quantity,
			ProductProfit: *l.ProductProfit,
		}
	}

	sale, err := h.sales.Create(c.Request.Context(), service.SaleInput{
		MachineID: req.MachineID,
		Date:      req.Date,
		Products:  lines,
		AllProfit: *req.AllProfit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "sale recorded", "sale": sale})
}

// GetSalesStats handles GET /api/sales/stats.
func (h *Handler) GetSalesStats(c *gin.Context) {
	stats, err := h.stats.Compute(c.Request.Context(), c.Query("machineId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
