// Package natsbus publishes coordination events over NATS.
//
// Delivery is core NATS fire-and-forget: subscribers that are not connected
// when an event is published never see it.
package natsbus

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// DefaultPrefix is the subject prefix when none is configured.
const DefaultPrefix = "swarmer"

// Message is the JSON payload published for each event.
type Message struct {
	SwarmID string                   `json:"swarm_id"`
	Event   models.CoordinationEvent `json:"event"`
}

// Publisher sends events to <prefix>.<swarmID>.events.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials url and returns a Publisher.
func Connect(url, prefix string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("swarmer"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return NewPublisher(conn, prefix), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Subject returns the event subject for swarmID. "*" matches every swarm.
func (p *Publisher) Subject(swarmID string) string {
	return p.prefix + "." + swarmID + ".events"
}

// Publish sends ev for swarmID.
func (p *Publisher) Publish(swarmID string, ev models.CoordinationEvent) error {
	data, err := json.Marshal(Message{SwarmID: swarmID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := p.conn.Publish(p.Subject(swarmID), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", p.Subject(swarmID), err)
	}
	return nil
}

// Subscribe delivers events for swarmID ("*" for all) to handler until the
// returned function is called. Undecodable payloads are logged and skipped.
func (p *Publisher) Subscribe(swarmID string, handler func(Message)) (func(), error) {
	sub, err := p.conn.Subscribe(p.Subject(swarmID), func(msg *nats.Msg) {
		var m Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			log.Printf("[natsbus] dropping undecodable message on %s: %v", msg.Subject, err)
			return
		}
		handler(m)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush() error {
	return p.conn.Flush()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
