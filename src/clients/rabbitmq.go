package clients

import (
	"fmt"
	"teamhub-realtime-svc/src/internal/config"

	"github.com/streadway/amqp"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

func NewRabbitMQ(cfg *config.QueueConfig) (*RabbitMQ, error) {
	log.WithField("url", "url:"+cfg.RabbitMQ.Url).Info("Connecting to RabbitMQ...")
	conn, err := amqp.Dial(cfg.RabbitMQ.Url)
	if err != nil {
		log.WithError(err).Errorf("Failed to connect to RabbitMQ: %v", err)
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		log.WithError(err).Errorf("Failed to open a channel: %v", err)
		return nil, err
	}

	log.Infof("Connected to RabbitMQ at %s", cfg.RabbitMQ.Url)

	return &RabbitMQ{
		Conn:    conn,
		Channel: channel,
		cfg:     &cfg.RabbitMQ,
	}, nil
}

func (r *RabbitMQ) Close() error {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ channel")
			return err
		}
		log.Info("RabbitMQ channel closed")
	}

	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			log.WithError(err).Error("Failed to close RabbitMQ connection")
			return err
		}
		log.Info("RabbitMQ connection closed")
	}

	return nil
}

// SetupQueue declares the events exchange, the service queue and binds them.
func (r *RabbitMQ) SetupQueue() error {
	err := r.Channel.ExchangeDeclare(
		r.cfg.Exchange,
		r.cfg.ExchangeType,
		r.cfg.Durable,
		r.cfg.AutoDelete,
		r.cfg.Internal,
		r.cfg.NoWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %v", err)
	}

	_, err = r.Channel.QueueDeclare(
		r.cfg.EventQueue,
		r.cfg.Durable,
		r.cfg.AutoDelete,
		r.cfg.Exclusive,
		r.cfg.NoWait,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %v", err)
	}

	// One binding per routing key so every event class the consumer
	// dispatches actually reaches the queue.
	for _, key := range r.cfg.RoutingKeys {
		err = r.Channel.QueueBind(
			r.cfg.EventQueue,
			key,
			r.cfg.Exchange,
			r.cfg.NoWait,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue on %s: %v", key, err)
		}
	}

	if err := r.Channel.Qos(r.cfg.PrefetchCount, r.cfg.PrefetchSize, r.cfg.Global); err != nil {
		return fmt.Errorf("failed to set channel QoS: %v", err)
	}

	return nil
}

// Consume starts delivering messages from the events queue.
func (r *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	return r.Channel.Consume(
		r.cfg.EventQueue,
		r.cfg.Consumer,
		r.cfg.AutoAck,
		r.cfg.Exclusive,
		r.cfg.NoLocal,
		r.cfg.NoWait,
		nil,
	)
}
