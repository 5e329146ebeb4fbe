package rabbitmq

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const QueueName = "image_postprocess_queue"

// PostProcessMessage asks a worker to run background removal and/or icon conversion
// over files already present in the raw store.
type PostProcessMessage struct {
	RequestID        string   `json:"request_id"`
	Filenames        []string `json:"filenames"`
	RemoveBackground bool     `json:"remove_background"`
	CreateICO        bool     `json:"create_ico"`
}

// NewPostProcessMessage assigns a fresh request id.
func NewPostProcessMessage(filenames []string, removeBackground, createICO bool) PostProcessMessage {
	return PostProcessMessage{
		RequestID:        uuid.NewString(),
		Filenames:        filenames,
		RemoveBackground: removeBackground,
		CreateICO:        createICO,
	}
}

func DecodeMessage(body []byte) (PostProcessMessage, error) {
	var msg PostProcessMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode message: %w", err)
	}
	if len(msg.Filenames) == 0 {
		return msg, fmt.Errorf("message %s has no filenames", msg.RequestID)
	}
	return msg, nil
}

type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewClient connects and declares the durable post-processing queue
func NewClient(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		QueueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	log.Printf("RabbitMQ client initialized with queue: %s", QueueName)

	return &Client{
		conn:    conn,
		channel: ch,
	}, nil
}

// Publish sends a raw JSON body to the queue
func (c *Client) Publish(body []byte) error {
	err := c.channel.Publish(
		"",        // exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (c *Client) PublishPostProcess(msg PostProcessMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := c.Publish(body); err != nil {
		return err
	}
	log.Printf("Queued post-processing request %s (%d files)", msg.RequestID, len(msg.Filenames))
	return nil
}

// Consume starts delivering messages with manual acknowledgement. prefetch bounds
// the number of unacknowledged deliveries held by this consumer.
func (c *Client) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch > 0 {
		if err := c.channel.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}
	msgs, err := c.channel.Consume(
		QueueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

// Close closes the channel and connection
func (c *Client) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Printf("Error closing channel: %v", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Printf("Error closing connection: %v", err)
		}
	}
	return nil
}
