package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sellerhub/marking/cmd/marking-worker/ingest"
	"github.com/sellerhub/marking/common/faults"
	"github.com/sellerhub/marking/common/logger"
	"github.com/sellerhub/marking/common/models"
	"github.com/sellerhub/marking/common/queue"
	rediscommon "github.com/sellerhub/marking/common/redis"
)

// DocumentProcessor runs one ingestion submission end to end.
// Implemented by ingest.Pipeline.
type DocumentProcessor interface {
	Run(ctx context.Context, req *models.IngestRequest) (*ingest.Report, error)
}

// IngestConsumer feeds submitted documents through the ingestion pipeline.
// Pipeline retries after a crash are safe because page artifacts of
// finished pages are gone, so a redelivered task resumes where it stopped.
type IngestConsumer struct {
	redis        *rediscommon.Client
	log          *logger.Logger
	pipeline     DocumentProcessor
	stream       string
	group        string
	consumerName string
}

// NewIngestConsumer creates a consumer over the ingest requests stream
func NewIngestConsumer(client *rediscommon.Client, log *logger.Logger, pipeline DocumentProcessor) *IngestConsumer {
	return &IngestConsumer{
		redis:        client,
		log:          log,
		pipeline:     pipeline,
		stream:       queue.StreamIngestRequests,
		group:        "ingest_workers",
		consumerName: fmt.Sprintf("ingest_worker_%s", uuid.New().String()[:8]),
	}
}

// Start blocks processing the stream until the context is canceled
func (c *IngestConsumer) Start(ctx context.Context) error {
	c.log.Info("starting ingest consumer",
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
			c.log.Info("ingest consumer stopping")
			return nil
		case <-claimTicker.C:
			c.claimStalled(ctx)
		default:
			if err := c.processNextMessage(ctx); err != nil {
				c.log.Error("failed to read ingest stream", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *IngestConsumer) processNextMessage(ctx context.Context) error {
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

func (c *IngestConsumer) claimStalled(ctx context.Context) {
	messages, _, err := c.redis.ClaimStalled(ctx, c.stream, c.group, c.consumerName, "0-0", claimMinIdle, claimBatch)
	if err != nil {
		c.log.Error("failed to claim stalled ingest messages", "error", err)
		return
	}
	for _, message := range messages {
		c.log.Info("reprocessing stalled ingest task", "message_id", message.ID)
		c.handleMessage(ctx, message)
	}
}

func (c *IngestConsumer) handleMessage(ctx context.Context, message redis.XMessage) {
	req, err := parseIngestRequest(message)
	if err != nil {
		c.log.Error("dropping malformed ingest message", "message_id", message.ID, "error", err)
		c.ack(ctx, message.ID)
		return
	}

	log := c.log.WithPart(req.PartID.String())

	report, err := c.pipeline.Run(ctx, req)
	if err != nil {
		switch {
		case faults.IsMismatch(err):
			// wrong-product documents do not become right on retry
			log.Error("document rejected, product mismatch", "message_id", message.ID, "error", err)
			c.ack(ctx, message.ID)
		case faults.IsValidation(err):
			log.Error("document rejected", "message_id", message.ID, "error", err)
			c.ack(ctx, message.ID)
		default:
			log.Error("ingestion failed, leaving task pending", "message_id", message.ID, "error", err)
		}
		return
	}

	log.Info("ingest task finished",
		"message_id", message.ID,
		"persisted", report.Persisted,
		"errors", report.Errors,
		"duplicates", report.Duplicates)
	c.ack(ctx, message.ID)
}

func (c *IngestConsumer) ack(ctx context.Context, messageID string) {
	if err := c.redis.AckStreamMessage(ctx, c.stream, c.group, messageID); err != nil {
		c.log.Error("failed to ACK ingest message", "message_id", messageID, "error", err)
	}
}

func parseIngestRequest(message redis.XMessage) (*models.IngestRequest, error) {
	raw, ok := message.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("message missing payload field")
	}
	var req models.IngestRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingest request: %w", err)
	}
	if req.OwnerID == uuid.Nil || req.PartID == uuid.Nil {
		return nil, fmt.Errorf("ingest request missing owner_id or part_id")
	}
	return &req, nil
}
