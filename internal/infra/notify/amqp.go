package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const notificationQueue = "notification_queue"

// RabbitMQへの発行クライアント。配送（プッシュ送信）は
// キューの先のワーカーが行う。
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	//durableで宣言しておく（ブローカー再起動でも残る）
	_, err = ch.QueueDeclare(notificationQueue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare %s: %w", notificationQueue, err)
	}

	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(body []byte) error {
	if p.channel == nil {
		return fmt.Errorf("amqp channel is not available")
	}

	return p.channel.Publish(
		"",                // exchange: default
		notificationQueue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
		})
}

func (p *AMQPPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("amqp close: %v", errs)
	}
	return nil
}
