package events

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Broker owns one AMQP connection with separate consume and publish channels.
type Broker struct {
	conn    *amqp.Connection
	consume *amqp.Channel
	publish *amqp.Channel
	log     *zap.Logger
}

// Dial connects to url and opens both channels.
func Dial(url string, log *zap.Logger) (*Broker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	consume, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	publish, err := conn.Channel()
	if err != nil {
		_ = consume.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	log.Info("connected to amqp broker")
	return &Broker{conn: conn, consume: consume, publish: publish, log: log}, nil
}

func (b *Broker) ConsumeChannel() *amqp.Channel { return b.consume }

func (b *Broker) PublishChannel() *amqp.Channel { return b.publish }

// Close closes the channels, then the connection.
func (b *Broker) Close() error {
	var errs []error
	for _, ch := range []*amqp.Channel{b.consume, b.publish} {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
