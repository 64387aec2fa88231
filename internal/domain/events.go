package domain

import (
	"encoding/json"
	"time"
)

// Event types
const (
	EventTypeBalanceCreated   = "balance.created"
	EventTypeBalanceDeposited = "balance.deposited"
	EventTypeBalanceWithdrawn = "balance.withdrawn"
)

// AggregateTypeBalance is the aggregate type of every balance event.
const AggregateTypeBalance = "balance"

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// BalanceEvent is the payload of every balance event.
type BalanceEvent struct {
	TransitionID string `json:"transition_id"`
	BalanceID    string `json:"balance_id"`
	Command      string `json:"command"`
	Amount       string `json:"amount"`
	MoneyIn      string `json:"money_in"`
	MoneyOut     string `json:"money_out"`
	Balance      string `json:"balance"`
	Currency     string `json:"currency"`
	Owner        string `json:"owner"`
	Version      int64  `json:"version"`
}

// EventTypeFor maps a command to the event emitted when it is committed.
func EventTypeFor(cmd Command) string {
	switch cmd {
	case CommandCreate:
		return EventTypeBalanceCreated
	case CommandDeposit:
		return EventTypeBalanceDeposited
	case CommandWithdraw:
		return EventTypeBalanceWithdrawn
	default:
		return ""
	}
}

// NewTransitionEvent builds the outbox event for a committed transition.
func NewTransitionEvent(id string, t *Transition, now time.Time) *OutboxEvent {
	out := t.Produced()
	payload := BalanceEvent{
		TransitionID: t.ID,
		BalanceID:    out.ID,
		Command:      t.Command.String(),
		Amount:       t.Amount().String(),
		MoneyIn:      out.MoneyIn.String(),
		MoneyOut:     out.MoneyOut.String(),
		Balance:      out.Balance().String(),
		Currency:     out.Currency,
		Owner:        out.Owner,
		Version:      out.Version,
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   out.ID,
		AggregateType: AggregateTypeBalance,
		EventType:     EventTypeFor(t.Command),
		Payload:       MarshalPayload(payload),
		CreatedAt:     now,
	}
}

// MarshalPayload converts a typed payload to the generic map stored in the outbox.
func MarshalPayload(v any) map[string]any {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": "failed to marshal payload"}
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"error": "failed to unmarshal payload"}
	}

	return result
}
