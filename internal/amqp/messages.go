package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/reminders"
)

// EventTransactionRecorded is the only event type published today.
const EventTransactionRecorded = "transaction.recorded"

// Reminder actions carried on the reminder queue.
const (
	ActionSchedule = "schedule"
	ActionCancel   = "cancel"
)

// TransactionEvent announces a transaction appended to the ledger.
// The worker reloads the transaction by ID; the embedded copy is used
// when the worker does not share the server's store.
type TransactionEvent struct {
	Type          string           `json:"type"`
	TransactionID string           `json:"transactionId"`
	Transaction   core.Transaction `json:"transaction"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewTransactionEvent wraps tx in a transaction.recorded event
func NewTransactionEvent(tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Type:          EventTransactionRecorded,
		TransactionID: tx.ID,
		Transaction:   tx,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes an event and checks its type and id.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != EventTransactionRecorded {
		return nil, fmt.Errorf("unexpected event type %q", msg.Type)
	}
	if msg.TransactionID == "" {
		return nil, fmt.Errorf("event without transaction id")
	}
	return &msg, nil
}

// ReminderMessage asks the worker to schedule or cancel a loan reminder.
type ReminderMessage struct {
	Action    string              `json:"action"`
	LoanID    string              `json:"loanId"`
	Reminder  *reminders.Reminder `json:"reminder,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func NewScheduleMessage(r reminders.Reminder) *ReminderMessage {
	return &ReminderMessage{
		Action:    ActionSchedule,
		LoanID:    r.LoanID,
		Reminder:  &r,
		Timestamp: time.Now(),
	}
}

func NewCancelMessage(loanID string) *ReminderMessage {
	return &ReminderMessage{
		Action:    ActionCancel,
		LoanID:    loanID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReminderMessageFromJSON decodes a reminder message. A schedule message
// must carry its reminder.
func ReminderMessageFromJSON(data []byte) (*ReminderMessage, error) {
	var msg ReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Action {
	case ActionSchedule:
		if msg.Reminder == nil {
			return nil, fmt.Errorf("schedule message without reminder")
		}
		if msg.LoanID == "" {
			msg.LoanID = msg.Reminder.LoanID
		}
	case ActionCancel:
		if msg.LoanID == "" {
			return nil, fmt.Errorf("cancel message without loan id")
		}
	default:
		return nil, fmt.Errorf("unknown reminder action %q", msg.Action)
	}
	return &msg, nil
}
