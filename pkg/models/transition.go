package models

import "time"

// TransitionKind classifies how an order left its department.
type TransitionKind string

const (
	TransitionForward  TransitionKind = "forward"
	TransitionSkip     TransitionKind = "skip"
	TransitionRework   TransitionKind = "rework"
	TransitionComplete TransitionKind = "complete"
	TransitionCancel   TransitionKind = "cancel"
)

// StageTransition records one stage change for audit and history consumers.
// ToDepartment is empty when the order left the pipeline.
type StageTransition struct {
	OrderID        string         `json:"order_id"`
	FromDepartment string         `json:"from_department"`
	ToDepartment   string         `json:"to_department,omitempty"`
	Kind           TransitionKind `json:"kind"`
	At             time.Time      `json:"at"`
}

// ChangeKind names the mutation a queue store is about to apply.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeMove   ChangeKind = "move"
	ChangeRemove ChangeKind = "remove"
)

// OrderChange is handed to persistence before a queue mutation becomes visible.
// Order holds the state after the change; for removals it is the final state.
type OrderChange struct {
	Kind       ChangeKind       `json:"kind"`
	Order      *ProductionOrder `json:"order"`
	Transition *StageTransition `json:"transition,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// QueueSnapshot is a point-in-time copy of one department queue, in rank order.
type QueueSnapshot struct {
	Department string             `json:"department"`
	Version    uint64             `json:"version"`
	TakenAt    time.Time          `json:"taken_at"`
	Orders     []*ProductionOrder `json:"orders"`
}

// OrderIDs lists the snapshot's order ids in rank order.
func (s QueueSnapshot) OrderIDs() []string {
	ids := make([]string, len(s.Orders))
	for i, o := range s.Orders {
		ids[i] = o.OrderID
	}

	return ids
}
