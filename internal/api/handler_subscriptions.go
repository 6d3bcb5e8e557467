package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint           string   `json:"endpoint" binding:"required"`
	P256DH             string   `json:"p256dh" binding:"required"`
	Auth               string   `json:"auth" binding:"required"`
	SubscribedMachines []string `json:"subscribed_machines"`
}

// PutSubscription handles the creation or replacement of a subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	machineIDs := make([]string, 0, len(req.SubscribedMachines))
	seen := make(map[string]bool, len(req.SubscribedMachines))
	for _, id := range req.SubscribedMachines {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		machineIDs = append(machineIDs, id)
	}

	subscription := &model.PushSubscription{
		Endpoint:   req.Endpoint,
		P256DH:     req.P256DH,
		Auth:       req.Auth,
		MachineIDs: machineIDs,
	}
	if err := h.store.PutSubscription(c.Request.Context(), subscription); err != nil {
		respondError(c, apperr.Persistence("save subscription", err))
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		respondError(c, apperr.Persistence("delete subscription", err))
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a query value without URL-decoding it. Push endpoints
// are stored exactly as the browser produced them.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		respondError(c, apperr.BadRequest("endpoint is required"))
		return
	}

	subscription, err := h.store.GetSubscription(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, apperr.NotFound("subscription"))
		} else {
			respondError(c, apperr.Persistence("load subscription", err))
		}
		return
	}

	machineIDs := subscription.MachineIDs
	if machineIDs == nil {
		machineIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"subscribed_machines": machineIDs})
}
