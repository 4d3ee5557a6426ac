package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
)

// amqpChannel is the subset of *amqp.Channel the publisher uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// EventPublisher publishes ledger events to a durable topic exchange. The
// routing key is the event type.
type EventPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// NewEventPublisher connects to RabbitMQ and declares the exchange
func NewEventPublisher(rabbitURL, exchange string, logger *logrus.Logger) (*EventPublisher, error) {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.WithField("exchange", exchange).Info("Ledger event publisher initialized")

	return &EventPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

func newEventPublisher(channel amqpChannel, exchange string, logger *logrus.Logger) *EventPublisher {
	return &EventPublisher{channel: channel, exchange: exchange, logger: logger}
}

// Publish sends evento as a persistent JSON message
func (p *EventPublisher) Publish(ctx context.Context, evento *models.EventoLedger) error {
	body, err := json.Marshal(evento)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,  // exchange
		evento.Tipo, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			MessageId:     evento.ID,
			CorrelationId: evento.CorrelationID,
			ContentType:   "application/json",
			Type:          evento.Tipo,
			Body:          body,
			Timestamp:     evento.OcurridoEn,
			DeliveryMode:  amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", evento.Tipo, err)
	}

	p.logger.WithFields(logrus.Fields{
		"evento":    evento.Tipo,
		"evento_id": evento.ID,
		"banco_id":  evento.BancoID,
	}).Debug("Published ledger event")
	return nil
}

// Ping reports whether the broker connection is still open
func (p *EventPublisher) Ping(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// Close closes the channel and connection
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.channel.Close(); err != nil {
		p.logger.Warnf("Error closing channel: %v", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Warnf("Error closing connection: %v", err)
			return err
		}
	}
	p.logger.Info("Ledger event publisher closed")
	return nil
}

// LogPublisher writes events to the log when no broker is configured
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a publisher that only logs
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs evento at debug level
func (p *LogPublisher) Publish(_ context.Context, evento *models.EventoLedger) error {
	p.logger.WithFields(logrus.Fields{
		"evento":      evento.Tipo,
		"evento_id":   evento.ID,
		"banco_id":    evento.BancoID,
		"ocurrido_en": evento.OcurridoEn.Format(time.RFC3339),
	}).Debug("Ledger event")
	return nil
}
