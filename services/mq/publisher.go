package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher pubblica messaggi JSON su un exchange topic di RabbitMQ
type Publisher struct {
	mu       sync.Mutex // amqp.Channel non è sicuro per uso concorrente
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher apre connessione e canale e dichiara l'exchange (durable, topic)
func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connessione a rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apertura canale: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("dichiarazione exchange %s: %w", exchange, err)
	}
	log.Printf("[Broker] Connesso, exchange %s pronto", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// PublishJSON serializza v e lo pubblica con la routing key indicata
func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializzazione messaggio %s: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
