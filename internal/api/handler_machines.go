package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/service"
)

type machineRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
	Status   string `json:"status"`
}

func (r machineRequest) input() service.MachineInput {
	return service.MachineInput{
		Name:     r.Name,
		Location: r.Location,
		Rows:     r.Rows,
		Cols:     r.Cols,
		Status:   model.MachineStatus(r.Status),
	}
}

// slotRequest accepts the product under "product" as the dashboard sends
// it, or under "productId".
type slotRequest struct {
	Product   *string         `json:"product"`
	ProductID *string         `json:"productId"`
	Quantity  *int            `json:"quantity" binding:"required"`
	Capacity  *int            `json:"capacity" binding:"required"`
	Price     decimal.Decimal `json:"price"`
}

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.machines.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, err := h.machines.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// CreateMachine handles POST /api/machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req machineRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.machines.Create(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// UpdateMachine handles PUT /api/machines/:id.
func (h *Handler) UpdateMachine(c *gin.Context) {
	var req machineRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.machines.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMachine handles DELETE /api/machines/:id.
func (h *Handler) DeleteMachine(c *gin.Context) {
	if err := h.machines.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "machine deleted"})
}

// UpdateSlot handles PATCH /api/machines/:id/slots/:slotCode.
func (h *Handler) UpdateSlot(c *gin.Context) {
	var req slotRequest
	if !bindJSON(c, &req) {
		return
	}
	product := req.Product
	if product == nil {
		product = req.ProductID
	}

	m, err := h.machines.UpdateSlot(c.Request.Context(), service.SlotInput{
		MachineID: c.Param("id"),
		SlotCode:  c.Param("slotCode"),
		Product:   product,
		Quantity:  *req.Quantity,
		Capacity:  *req.Capacity,
		Price:     req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// RefillMachine handles PUT /api/machines/:id/refill.
func (h *Handler) RefillMachine(c *gin.Context) {
	m, err := h.machines.Refill(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetRestockPlan handles GET /api/machines/:id/restock.
func (h *Handler) GetRestockPlan(c *gin.Context) {
	plan, err := h.restock.Plan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// MarkRefilled handles POST /api/machines/:id/restock.
func (h *Handler) MarkRefilled(c *gin.Context) {
	res, err := h.restock.MarkRefilled(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetMapMachines handles GET /api/map/machines.
func (h *Handler) GetMapMachines(c *gin.Context) {
	markers, err := h.machines.Markers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, markers)
}
