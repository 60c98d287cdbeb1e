package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"quizbee-service/internal/domain"
)

// Channel is the subset of *amqp.Channel the forwarder uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder publishes lifecycle events to a topic exchange, routing key = event kind.
type AMQPForwarder struct {
	channel  Channel
	exchange string
	log      *zap.Logger
	closeFn  func()
}

// DialAMQP connects, declares a durable topic exchange and returns a forwarder.
func DialAMQP(url, exchange string, log *zap.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	f := NewAMQPForwarder(ch, exchange, log)
	f.closeFn = func() {
		_ = ch.Close()
		_ = conn.Close()
	}
	return f, nil
}

func NewAMQPForwarder(ch Channel, exchange string, log *zap.Logger) *AMQPForwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPForwarder{channel: ch, exchange: exchange, log: log}
}

func (f *AMQPForwarder) Register(bus *Bus) {
	for _, kind := range AllKinds {
		bus.Subscribe(kind, "amqp", f.Handle)
	}
}

func (f *AMQPForwarder) Handle(_ context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = f.channel.Publish(f.exchange, string(event.Kind), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   event.Timestamp,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", event.Kind, err)
	}
	f.log.Debug("event forwarded", zap.String("kind", string(event.Kind)), zap.String("exchange", f.exchange))
	return nil
}

func (f *AMQPForwarder) Close() {
	if f.closeFn != nil {
		f.closeFn()
	}
}
