// Package notify delivers domain events emitted by the savings and loan
// services to the outside world.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/entraide/caisse-engine/generic"
)

// conn is the slice of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

// NATSPublisher publishes each event as JSON on "<prefix>.<event type>",
// e.g. caisse.contract.penalty_applied.
type NATSPublisher struct {
	servers              string
	prefix               string
	mu                   sync.RWMutex
	nc                   conn
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

func NewNATSPublisher(servers, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "caisse"
	}
	return &NATSPublisher{
		servers:              servers,
		prefix:               prefix,
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: 10,
	}
}

// Connect establishes the NATS connection.
func (p *NATSPublisher) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name("caisse-engine"),
		nats.MaxReconnects(p.maxReconnectAttempts),
		nats.ReconnectWait(p.reconnectDelay),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(p.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p.mu.Lock()
	p.nc = nc
	p.mu.Unlock()

	log.WithField("servers", p.servers).Info("Connected to NATS")
	return nil
}

func (p *NATSPublisher) Subject(t generic.EventType) string {
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, event generic.Event) error {
	p.mu.RLock()
	nc := p.nc
	p.mu.RUnlock()
	if nc == nil {
		return fmt.Errorf("not connected to NATS")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}
	subject := p.Subject(event.Type)
	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"subject":    subject,
		"contractID": event.ContractID,
		"size":       len(data),
	}).Debug("Published event to NATS")
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Flush(); err != nil {
		log.WithError(err).Warn("Failed to flush NATS connection")
	}
	p.nc.Close()
	p.nc = nil
	log.Info("NATS connection closed")
	return nil
}
