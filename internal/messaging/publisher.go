package messaging

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

// Event routing keys. The server wiring publishes trade.executed and
// stop.triggered; order.placed and order.cancelled are defined but not
// published by any caller.
const (
	RouteOrderPlaced    = "order.placed"
	RouteOrderCancelled = "order.cancelled"
	RouteTradeExecuted  = "trade.executed"
	RouteStopTriggered  = "stop.triggered"
)

// Publisher publishes engine events (trades, stop triggers) to a RabbitMQ
// topic exchange. Consumers downstream feed
// analytics, notifications and market-data fan-out; the matching engine
// itself stays purely computational.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher initializes a RabbitMQ publisher with the given exchange.
func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Topic exchange so consumers can bind patterns like trade.* or order.*
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
	}, nil
}

// Publish sends an event message with the given routing key.
func (p *Publisher) Publish(routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return err
	}

	log.Printf("📤 Event published: %s", routingKey)
	return nil
}

// Close shuts down RabbitMQ resources gracefully.
func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
