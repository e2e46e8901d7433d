package models

import (
	"slices"
	"time"

	"github.com/dukex/prodflow/pkg/periodclock"
)

// OrderState is the lifecycle position of a production order.
type OrderState string

const (
	OrderStateIntake     OrderState = "intake"
	OrderStateQueued     OrderState = "queued"
	OrderStateInProgress OrderState = "in_progress"
	OrderStateReworked   OrderState = "reworked"
	OrderStateCompleted  OrderState = "completed"
	OrderStateCancelled  OrderState = "cancelled"
)

// Waiting reports whether the order sits in a department queue waiting to be worked.
func (s OrderState) Waiting() bool {
	return s == OrderStateQueued || s == OrderStateReworked
}

// Active reports whether the order is still somewhere in the pipeline.
func (s OrderState) Active() bool {
	return s == OrderStateQueued || s == OrderStateInProgress || s == OrderStateReworked
}

// Urgency is an advisory classification derived from the due date.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// ProductionOrder is one unit of work flowing through the department pipeline.
type ProductionOrder struct {
	OrderID       string            `json:"order_id"`
	Customer      string            `json:"customer"`
	Product       string            `json:"product"`
	Quantity      int               `json:"quantity"`
	PriorityScore float64           `json:"priority_score"`
	DueDate       *periodclock.Date `json:"due_date,omitempty"`
	StockModel    string            `json:"stock_model,omitempty"`
	Flags         []string          `json:"flags,omitempty"`

	PeriodIndex       int        `json:"period_index"`
	PeriodCode        string     `json:"period_code"`
	CurrentDepartment string     `json:"current_department"`
	State             OrderState `json:"state"`
	EnqueuedAt        time.Time  `json:"enqueued_at"`
	ReworkCount       int        `json:"rework_count"`

	Urgency          Urgency `json:"urgency,omitempty"`
	NeedsInformation bool    `json:"needs_information"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no mutable memory with o.
func (o *ProductionOrder) Clone() *ProductionOrder {
	if o == nil {
		return nil
	}

	clone := *o
	clone.Flags = slices.Clone(o.Flags)

	if o.DueDate != nil {
		due := *o.DueDate
		clone.DueDate = &due
	}

	return &clone
}

// HasFlag reports whether the upstream system tagged the order with flag.
func (o *ProductionOrder) HasFlag(flag string) bool {
	return slices.Contains(o.Flags, flag)
}

// OrderData is an order record as received from the originating order system.
type OrderData struct {
	OrderID       string            `json:"order_id"       validate:"required,max=64"`
	Customer      string            `json:"customer"       validate:"required"`
	Product       string            `json:"product"        validate:"required"`
	Quantity      int               `json:"quantity"       validate:"gt=0"`
	PriorityScore float64           `json:"priority_score"`
	DueDate       *periodclock.Date `json:"due_date,omitempty"`
	SpecRef       string            `json:"spec_ref"`
	Flags         []string          `json:"flags,omitempty" validate:"dive,required"`
}
