package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"greenthumb/config"
	"greenthumb/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQService consumes readings from a queue and publishes history events
type RabbitMQService struct {
	config      *config.Config
	conn        *amqp.Connection
	consumeChan *amqp.Channel
	publishChan *amqp.Channel
	logger      *zap.Logger
	reconnect   chan bool
	mu          sync.RWMutex
	isClosing   bool
}

// NewRabbitMQService creates a new RabbitMQ service instance
func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		config:    cfg,
		logger:    logger,
		reconnect: make(chan bool, 1),
	}

	if err := service.connect(); err != nil {
		return nil, err
	}

	go service.handleReconnect()

	return service, nil
}

// connect establishes the connection and declares exchange, queue and bindings
func (r *RabbitMQService) connect() error {
	r.logger.Info("Connecting to RabbitMQ", zap.String("exchange", r.config.RabbitMQExchange))

	conn, err := amqp.Dial(r.config.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	consumeChan, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open consume channel: %w", err)
	}

	publishChan, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open publish channel: %w", err)
	}

	// One reading at a time: actions on the session are serialized anyway
	if err := consumeChan.Qos(1, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = consumeChan.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"direct",                  // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := consumeChan.QueueDeclare(
		r.config.RabbitMQReadingQueue, // name
		true,                          // durable
		false,                         // delete when unused
		false,                         // exclusive
		false,                         // no-wait
		nil,                           // arguments
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Readings published over AMQP directly and over MQTT via the broker's MQTT plugin
	for _, exchange := range []string{r.config.RabbitMQExchange, "amq.topic"} {
		if err := consumeChan.QueueBind(queue.Name, r.config.RabbitMQReadingQueue, exchange, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("failed to bind queue to %s: %w", exchange, err)
		}
		r.logger.Info("Queue bound to exchange",
			zap.String("queue", queue.Name),
			zap.String("exchange", exchange),
			zap.String("routing_key", r.config.RabbitMQReadingQueue))
	}

	r.mu.Lock()
	r.conn = conn
	r.consumeChan = consumeChan
	r.publishChan = publishChan
	r.mu.Unlock()

	r.logger.Info("Connected to RabbitMQ successfully")
	return nil
}

// handleReconnect re-dials whenever the connection drops
func (r *RabbitMQService) handleReconnect() {
	for {
		r.mu.RLock()
		conn := r.conn
		r.mu.RUnlock()

		closeErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))

		r.mu.RLock()
		closing := r.isClosing
		r.mu.RUnlock()
		if closing || !ok {
			r.logger.Info("RabbitMQ connection closed gracefully")
			return
		}

		r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

		for {
			r.logger.Info("Attempting to reconnect to RabbitMQ")
			err := r.connect()
			if err == nil {
				r.logger.Info("Successfully reconnected to RabbitMQ")
				select {
				case r.reconnect <- true:
				default:
				}
				break
			}

			r.logger.Error("Failed to reconnect", zap.Error(err))
			time.Sleep(5 * time.Second)
		}
	}
}

// Consume forwards readings to readingChan until ctx is done
func (r *RabbitMQService) Consume(ctx context.Context, readingChan chan<- *models.ReadingMessage) error {
	for {
		r.mu.RLock()
		ch := r.consumeChan
		r.mu.RUnlock()

		msgs, err := ch.Consume(
			r.config.RabbitMQReadingQueue, // queue
			"greenthumb-dashboard",        // consumer tag
			false,                         // auto-ack
			false,                         // exclusive
			false,                         // no-local
			false,                         // no-wait
			nil,                           // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer: %w", err)
		}

		r.logger.Info("Started consuming readings from RabbitMQ",
			zap.String("queue", r.config.RabbitMQReadingQueue))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping RabbitMQ consumer")
				return nil

			case <-r.reconnect:
				r.logger.Info("Reconnection detected, restarting consumer")
				break consumeLoop

			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("Message channel closed")
					time.Sleep(1 * time.Second)
					break consumeLoop
				}

				reading, err := DecodeReadingMessage(msg.Body)
				if err != nil {
					// Malformed payloads will never parse, so drop them instead of requeueing
					r.logger.Error("Failed to decode reading message",
						zap.Error(err),
						zap.String("message_id", msg.MessageId))
					msg.Nack(false, false)
					continue
				}

				select {
				case readingChan <- reading:
					msg.Ack(false)
				case <-ctx.Done():
					msg.Nack(false, true)
					return nil
				}
			}
		}
	}
}

// PublishRecord emits an appended history record as a JSON event
func (r *RabbitMQService) PublishRecord(ctx context.Context, record models.HistoryRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	r.mu.RLock()
	ch := r.publishChan
	r.mu.RUnlock()

	err = ch.PublishWithContext(ctx,
		r.config.RabbitMQExchange,        // exchange
		r.config.RabbitMQEventRoutingKey, // routing key
		false,                            // mandatory
		false,                            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    record.Timestamp,
			Type:         "diagnosis.recorded",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish history record: %w", err)
	}

	r.logger.Debug("Published history record",
		zap.String("routing_key", r.config.RabbitMQEventRoutingKey),
		zap.Time("timestamp", record.Timestamp))
	return nil
}

// Close gracefully closes the RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.mu.Lock()
	r.isClosing = true
	conn := r.conn
	r.mu.Unlock()

	r.logger.Info("Closing RabbitMQ connection")

	if conn != nil {
		if err := conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}

// DecodeReadingMessage parses a broker payload and fills in the timestamp when missing
func DecodeReadingMessage(body []byte) (*models.ReadingMessage, error) {
	var msg models.ReadingMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reading := models.SensorReading{Humidity: msg.Humidity, Temperature: msg.Temperature}
	if err := reading.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reading: %w", err)
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return &msg, nil
}

// ReadingFromMessage converts a broker message into dashboard inputs
func ReadingFromMessage(msg *models.ReadingMessage) (models.SensorReading, *models.PlantImage, error) {
	reading := models.SensorReading{Humidity: msg.Humidity, Temperature: msg.Temperature}
	if msg.ImageBase64 == "" {
		return reading, nil, nil
	}

	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, msg.ImageBase64)

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return reading, nil, fmt.Errorf("error decoding image: %w", err)
	}

	mimeType := msg.ImageType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return reading, &models.PlantImage{Data: data, MimeType: mimeType}, nil
}
