package generic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DOMAIN EVENTS - Fire-and-forget outputs for notification/PDF/search sinks
// =============================================================================

type EventType string

const (
	EventContractActivated EventType = "contract.activated"
	EventStatusChanged     EventType = "contract.status_changed"
	EventPenaltyApplied    EventType = "contract.penalty_applied"
	EventContractDefaulted EventType = "contract.defaulted"
	EventContractRescinded EventType = "contract.rescinded"
	EventRefundOpened      EventType = "refund.opened"
	EventRefundPaid        EventType = "refund.paid"
	EventContractClosed    EventType = "contract.closed"
	EventInstallmentLate   EventType = "installment.overdue"
	EventLoanClosed        EventType = "loan.closed"
)

type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Product    ProductKind       `json:"product"`
	ContractID ContractID        `json:"contract_id"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func NewEvent(t EventType, product ProductKind, id ContractID, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Product:    product,
		ContractID: id,
		At:         at,
		Attributes: attrs,
	}
}

// Publisher delivers events. Implementations must not block the engine on
// delivery; errors are logged by the caller, never rolled back.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// RecordingPublisher keeps events in memory; used by tests and the demo scenarios.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *RecordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// OfType filters recorded events.
func (p *RecordingPublisher) OfType(t EventType) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
