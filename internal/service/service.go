// Package service implements the inventory operations behind the HTTP API:
// machine grid mutations, product management, sale recording and the
// restock workflow. Multi-document writes run as ordered, independent
// steps; no step is rolled back when a later one fails.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/metrics"
	"snacktrack-backend/internal/store"
)

// Reasons attached to partial_consistency log events.
const (
	ReasonMachineDeleted    = "machine_deleted_with_allocations"
	ReasonAllocationMissing = "allocation_target_missing"
	ReasonAllocationFailed  = "allocation_update_failed"
	ReasonSaleStockAborted  = "sale_stock_update_aborted"
	ReasonRefillAfterSale   = "refill_failed_after_sale"
)

// Thresholds configures when restock alerts fire.
type Thresholds struct {
	// Fullness below this percentage raises a machine alert.
	Fullness int
	// Stock at or below this value raises a product alert.
	LowStock int
}

// loggerFrom prefers the request-scoped logger carried by ctx.
func loggerFrom(ctx context.Context, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

// partialConsistency counts and starts a partial_consistency log event.
func partialConsistency(l *zerolog.Logger, reason string) *zerolog.Event {
	metrics.PartialConsistency.WithLabelValues(reason).Inc()
	return log.PartialConsistency(l, reason)
}

// lookupError maps a store read failure onto a typed error.
func lookupError(resource, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFoundWithID(resource, id)
	}
	return apperr.Persistence("load "+resource, err)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
