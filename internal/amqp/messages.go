package amqp

import (
	"encoding/json"
	"time"
)

// Routing keys on the topic exchange.
const (
	RoutingTransactionCreated = "transaction.created"
	RoutingSchedulePrefix     = "schedule."
)

// TransactionCreatedMessage announces a transaction committed from a
// schedule. Consumers fetch the full transaction from the database.
type TransactionCreatedMessage struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	Version    int       `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewTransactionCreatedMessage(id, scheduleID string, version int) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		ID:         id,
		ScheduleID: scheduleID,
		Version:    version,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ScheduleEventMessage mirrors a model notification: a schedule was added,
// removed or had its instances updated.
type ScheduleEventMessage struct {
	Type       string    `json:"type"`
	ScheduleID string    `json:"schedule_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewScheduleEventMessage(eventType, scheduleID string) *ScheduleEventMessage {
	return &ScheduleEventMessage{
		Type:       eventType,
		ScheduleID: scheduleID,
		Timestamp:  time.Now(),
	}
}

// RoutingKey is "schedule." followed by the event type.
func (m *ScheduleEventMessage) RoutingKey() string {
	return RoutingSchedulePrefix + m.Type
}

func (m *ScheduleEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ScheduleEventMessageFromJSON(data []byte) (*ScheduleEventMessage, error) {
	var msg ScheduleEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
