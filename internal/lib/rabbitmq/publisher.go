package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher связывает канал с exchange, чтобы сервисам не передавать их по отдельности.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher подключается к брокеру и подготавливает exchange с очередями платежных событий.
func NewPublisher(url, exchange string) (*Publisher, error) {
	const op = "rabbitmq.NewPublisher"

	conn, err := Connect(url, 5, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := SetupChannel(conn, exchange, GetPaymentQueues())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish публикует событие с указанным ключом маршрутизации.
func (p *Publisher) Publish(routingkey string, message any) error {
	return PublishMessage(p.ch, p.exchange, routingkey, message)
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	return p.conn.Close()
}
