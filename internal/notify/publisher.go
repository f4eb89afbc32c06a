// Package notify publishes settlement events for the mail/rendering
// pipeline. Delivery is fire-and-forget: a broker failure is logged and
// never surfaces into settlement.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/shubhamsingh32112/worldtile-backend-sub001/internal/domain"
)

const publishTimeout = 5 * time.Second

// Publisher writes deed-issued events to a topic exchange.
type Publisher struct {
	url      string
	exchange string
	topic    string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewPublisher(url, exchange, topic string) *Publisher {
	return &Publisher{
		url:      url,
		exchange: exchange,
		topic:    topic,
	}
}

// DeedIssuedEvent is the wire payload consumed by the notification workers.
type DeedIssuedEvent struct {
	DeedID     string    `json:"deed_id"`
	OrderID    string    `json:"order_id"`
	UnitID     string    `json:"unit_id"`
	SealNo     string    `json:"seal_no"`
	TxHash     string    `json:"tx_hash"`
	OwnerName  string    `json:"owner_name"`
	OwnerEmail string    `json:"owner_email"`
	IssuedAt   time.Time `json:"issued_at"`
}

// DeedIssued publishes the confirmation event for a freshly issued deed.
func (p *Publisher) DeedIssued(ctx context.Context, deed domain.Deed, owner domain.User) error {
	event := DeedIssuedEvent{
		DeedID:     deed.ID,
		OrderID:    deed.OrderID,
		UnitID:     deed.UnitID,
		SealNo:     deed.SealNo,
		TxHash:     deed.TxHash,
		OwnerName:  owner.Name,
		OwnerEmail: owner.Email,
		IssuedAt:   deed.IssuedAt,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode deed event: %w", err)
	}

	ch, err := p.ensureChannel()
	if err != nil {
		return fmt.Errorf("%w: notify channel: %v", domain.ErrExternalService, err)
	}

	err = ch.Publish(p.exchange, p.topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("%w: publish deed event: %v", domain.ErrExternalService, err)
	}

	log.Debug().Str("deedID", deed.ID).Str("topic", p.topic).Msg("deed event published")
	return nil
}

func (p *Publisher) ensureChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		return p.channel, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p.conn = conn
	p.channel = ch
	return ch, nil
}

func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() {
	p.reset()
}
