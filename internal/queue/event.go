// Package queue carries workflow notifications over RabbitMQ: the
// message payload, a publisher used by the service layer and a consumer
// that keeps an approvals log.
package queue

import "time"

// StatusQueueName is the durable queue every status change is sent to.
const StatusQueueName = "event.status.changed"

// StatusChangedEvent is published after a transaction that moved an
// event to a new status has committed.  It carries enough context for a
// notification service to address the requestor without querying the
// primary database.
type StatusChangedEvent struct {
	MessageID     string    `json:"message_id"`
	EventID       uint64    `json:"event_id"`
	EventName     string    `json:"event_name"`
	Venue         string    `json:"venue"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	RequestorID   uint64    `json:"requestor_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ActorRole     string    `json:"actor_role"`
	ActorID       uint64    `json:"actor_id"`
	Reason        string    `json:"reason,omitempty"`
	WinnerEventID uint64    `json:"winner_event_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
