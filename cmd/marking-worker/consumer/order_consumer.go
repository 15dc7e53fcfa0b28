// Package consumer runs the worker's Redis stream loops. Messages are
// acknowledged only after their handler succeeds; failed deliveries stay in
// the pending entries list and come back through the stalled-claim pass, so
// processing is at-least-once and every handler behind a consumer is
// expected to be idempotent.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
	"github.com/sellerhub/marking/common/queue"
	rediscommon "github.com/sellerhub/marking/common/redis"
)

const (
	readBlock     = 5 * time.Second
	claimInterval = time.Minute
	claimMinIdle  = 2 * time.Minute
	claimBatch    = 10
)

// OrderHandler reacts to one order notification
type OrderHandler interface {
	Name() string
	Handle(ctx context.Context, note *models.OrderNotification) error
}

// OrderConsumer feeds order change notifications through the reaction
// handlers
type OrderConsumer struct {
	redis        *rediscommon.Client
	log          *logger.Logger
	handlers     []OrderHandler
	stream       string
	group        string
	consumerName string
}

// NewOrderConsumer creates a consumer over the order events stream
func NewOrderConsumer(client *rediscommon.Client, log *logger.Logger, handlers ...OrderHandler) *OrderConsumer {
	return &OrderConsumer{
		redis:        client,
		log:          log,
		handlers:     handlers,
		stream:       queue.StreamOrderEvents,
		group:        "order_reaction_workers",
		consumerName: fmt.Sprintf("order_worker_%s", uuid.New().String()[:8]),
	}
}

// Start blocks processing the stream until the context is canceled
func (c *OrderConsumer) Start(ctx context.Context) error {
	c.log.Info("starting order consumer",
		"stream", c.stream,
		"group", c.group,
		"consumer_name", c.consumerName)

	if err := c.redis.CreateStreamGroup(ctx, c.stream, c.group); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	claimTicker := time.NewTicker(claimInterval)
	defer claimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("order consumer stopping")
			return nil
		case <-claimTicker.C:
			c.claimStalled(ctx)
		default:
			if err := c.processNextMessage(ctx); err != nil {
				c.log.Error("failed to read order stream", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *OrderConsumer) processNextMessage(ctx context.Context) error {
	streams, err := c.redis.ReadFromStreamGroup(ctx, c.group, c.consumerName, c.stream, 1, readBlock)
	if err != nil {
		return fmt.Errorf("XREADGROUP error: %w", err)
	}
	if streams == nil {
		return nil
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handleMessage(ctx, message)
		}
	}
	return nil
}

// claimStalled re-runs deliveries another consumer read but never
// acknowledged
func (c *OrderConsumer) claimStalled(ctx context.Context) {
	messages, _, err := c.redis.ClaimStalled(ctx, c.stream, c.group, c.consumerName, "0-0", claimMinIdle, claimBatch)
	if err != nil {
		c.log.Error("failed to claim stalled order messages", "error", err)
		return
	}
	for _, message := range messages {
		c.log.Info("reprocessing stalled order message", "message_id", message.ID)
		c.handleMessage(ctx, message)
	}
}

// handleMessage runs every reaction handler over one delivery and
// acknowledges only when all of them succeed
func (c *OrderConsumer) handleMessage(ctx context.Context, message redis.XMessage) {
	note, err := parseNotification(message)
	if err != nil {
		// malformed payloads never become processable; drop them
		c.log.Error("dropping malformed order message", "message_id", message.ID, "error", err)
		c.ack(ctx, message.ID)
		return
	}

	for _, handler := range c.handlers {
		if err := handler.Handle(ctx, note); err != nil {
			c.log.Error("order reaction failed, leaving message pending",
				"message_id", message.ID,
				"handler", handler.Name(),
				"order_id", note.OrderID,
				"error", err)
			return
		}
	}

	c.ack(ctx, message.ID)
}

func (c *OrderConsumer) ack(ctx context.Context, messageID string) {
	if err := c.redis.AckStreamMessage(ctx, c.stream, c.group, messageID); err != nil {
		c.log.Error("failed to ACK order message", "message_id", messageID, "error", err)
	}
}

func parseNotification(message redis.XMessage) (*models.OrderNotification, error) {
	raw, ok := message.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("message missing payload field")
	}
	var note models.OrderNotification
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if note.OrderID == uuid.Nil || note.EventID == uuid.Nil {
		return nil, fmt.Errorf("notification missing order_id or event_id")
	}
	return &note, nil
}
