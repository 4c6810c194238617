package notify

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/generic"
)

// LogPublisher writes every event to the structured log. It is the sink
// used when NATS is not configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event generic.Event) error {
	fields := log.Fields{
		"eventID":    event.ID,
		"eventType":  event.Type,
		"product":    event.Product,
		"contractID": event.ContractID,
	}
	for k, v := range event.Attributes {
		fields[k] = v
	}
	p.logger.WithFields(fields).Info("Domain event")
	return nil
}

// Fanout publishes to every sink and returns the first error after trying all.
type Fanout []generic.Publisher

func (f Fanout) Publish(ctx context.Context, event generic.Event) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
