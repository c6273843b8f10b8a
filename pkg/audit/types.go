package audit

import (
	"encoding/json"
	"time"
)

// EventType names what happened, prefixed by its family (authz. or data.)
type EventType string

const (
	EventTypeUserDecision   EventType = "authz.user_decision"
	EventTypeUnitDecision   EventType = "authz.unit_decision"
	EventTypeOrgDecision    EventType = "authz.organization_decision"
	EventTypeContextMissing EventType = "authz.no_active_position"

	EventTypeUserUpdate       EventType = "data.user_update"
	EventTypeUnitDelete       EventType = "data.unit_delete"
	EventTypeUnitMove         EventType = "data.unit_move"
	EventTypeManagerAssign    EventType = "data.manager_assign"
	EventTypePositionActivate EventType = "data.position_activate"
)

// EventStatus is allowed/denied for decisions and success/failure for writes
type EventStatus string

const (
	EventStatusAllowed EventStatus = "allowed"
	EventStatusDenied  EventStatus = "denied"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is one audit record. Every destination stores the same shape.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID        string `json:"actor_id,omitempty"`
	ActorRole      string `json:"actor_role,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Operation    string `json:"operation,omitempty"`

	// Decision details. Reason is audit-safe and never names entities the
	// actor cannot see.
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON encodes the event as one JSON object
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes an event written by ToJSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}
