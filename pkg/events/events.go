// Package events defines the notifications the scheduler publishes about orders and queues.
package events

import (
	"time"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every scheduler event.
const Topic = "prodflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Order lifecycle events.
	OrderIngestedEvent      EventType = "order.ingested"
	OrderReprioritizedEvent EventType = "order.reprioritized"
	OrderRemovedEvent       EventType = "order.removed"

	// Stage transition audit event.
	StageTransitionedEvent EventType = "order.stage.transitioned"

	// Read-model events.
	QueueChangedEvent EventType = "queue.changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	OrderID   string         `json:"order_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, orderID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		OrderID:   orderID,
		Metadata:  make(map[string]any),
	}
}

type OrderIngested struct {
	BaseEvent

	Order   *models.ProductionOrder `json:"order"`
	Updated bool                    `json:"updated"`
}

func (e OrderIngested) GetType() EventType {
	return OrderIngestedEvent
}

type StageTransitioned struct {
	BaseEvent

	Transition models.StageTransition `json:"transition"`
}

func (e StageTransitioned) GetType() EventType {
	return StageTransitionedEvent
}

type OrderReprioritized struct {
	BaseEvent

	PriorityScore float64 `json:"priority_score"`
	DueDate       string  `json:"due_date,omitempty"`
	PeriodIndex   int     `json:"period_index"`
	Department    string  `json:"department"`
}

func (e OrderReprioritized) GetType() EventType {
	return OrderReprioritizedEvent
}

type OrderRemoved struct {
	BaseEvent

	Department string            `json:"department"`
	State      models.OrderState `json:"state"`
	Reason     string            `json:"reason,omitempty"`
}

func (e OrderRemoved) GetType() EventType {
	return OrderRemovedEvent
}

// QueueChanged announces a new version of one department's read model.
type QueueChanged struct {
	BaseEvent

	Department string   `json:"department"`
	Version    uint64   `json:"version"`
	OrderIDs   []string `json:"order_ids"`
}

func (e QueueChanged) GetType() EventType {
	return QueueChangedEvent
}

// NewQueueChanged builds the read-model event from a snapshot.
func NewQueueChanged(snapshot models.QueueSnapshot) QueueChanged {
	return QueueChanged{
		BaseEvent:  NewBaseEvent(QueueChangedEvent, ""),
		Department: snapshot.Department,
		Version:    snapshot.Version,
		OrderIDs:   snapshot.OrderIDs(),
	}
}
