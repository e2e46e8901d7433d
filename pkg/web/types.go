// Package web provides HTTP request and response types for the scheduling API.
package web

import (
	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/periodclock"
)

// AdvanceRequest asks for a stage advance. An empty ToDepartment follows the
// order's default route.
type AdvanceRequest struct {
	ToDepartment string `json:"to_department" validate:"omitempty,max=255"`
}

// ReprioritizeRequest changes an order's score and, when given, its due date.
type ReprioritizeRequest struct {
	PriorityScore *float64          `json:"priority_score" validate:"required"`
	DueDate       *periodclock.Date `json:"due_date,omitempty"`
}

// ReconcileRequest carries the authoritative upstream id set. Without
// order_ids the configured catalog is asked for it.
type ReconcileRequest struct {
	OrderIDs []string `json:"order_ids" validate:"omitempty,dive,max=64"`
}

type IngestResponse struct {
	Order *models.ProductionOrder `json:"order"`
}

type QueueResponse struct {
	models.QueueSnapshot

	Size int `json:"size"`
}
