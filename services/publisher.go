package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ResultPublisher hands batch summaries to an external notifier
type ResultPublisher interface {
	PublishSummary(ctx context.Context, summary models.BatchSummary) error
}

// AMQPResultPublisher publishes each summary as a persistent JSON message
// to a durable queue. A connection is opened per publish; batches run a
// few times a day.
type AMQPResultPublisher struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)
}

// NewAMQPResultPublisher returns nil when url is empty
func NewAMQPResultPublisher(url, queue string) *AMQPResultPublisher {
	if url == "" {
		return nil
	}
	if queue == "" {
		queue = "lottery.results"
	}
	return &AMQPResultPublisher{url: url, queue: queue, dial: amqp.Dial}
}

// PublishSummary declares the queue and publishes summary to it
func (p *AMQPResultPublisher) PublishSummary(ctx context.Context, summary models.BatchSummary) error {
	logger := logrus.WithFields(logrus.Fields{
		"component": "AMQPResultPublisher",
		"method":    "PublishSummary",
		"batch_id":  summary.BatchID,
		"queue":     p.queue,
	})

	body, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	conn, err := p.dial(p.url)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "AMQP_DIAL_FAILED", "AMQPResultPublisher", "PublishSummary", true)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "AMQP_CHANNEL_FAILED", "AMQPResultPublisher", "PublishSummary", true)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "AMQP_DECLARE_FAILED", "AMQPResultPublisher", "PublishSummary", true)
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    summary.BatchID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryNetwork, "AMQP_PUBLISH_FAILED", "AMQPResultPublisher", "PublishSummary", true)
	}

	logger.Info("Published batch summary")
	return nil
}
