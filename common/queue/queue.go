package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sellerhub/marking/common/logger"
	rediscommon "github.com/sellerhub/marking/common/redis"
)

// Stream names shared by producers and consumers
const (
	StreamIngestRequests = "mk.ingest.requests"
	StreamOrderEvents    = "mk.order.events"
	StreamImageUploads   = "mk.image.uploads"
)

// Publisher dispatches asynchronous tasks and fire-and-forget messages
type Publisher interface {
	Publish(ctx context.Context, stream string, payload any) error
	Close() error
}

// StreamPublisher publishes JSON payloads onto Redis streams
type StreamPublisher struct {
	redis *rediscommon.Client
	log   *logger.Logger
}

// NewStreamPublisher creates a Redis-stream-backed publisher
func NewStreamPublisher(client *rediscommon.Client, log *logger.Logger) *StreamPublisher {
	return &StreamPublisher{redis: client, log: log}
}

// Publish marshals the payload and appends it to the stream
func (p *StreamPublisher) Publish(ctx context.Context, stream string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", stream, err)
	}

	if _, err := p.redis.AddToStream(ctx, stream, map[string]interface{}{"payload": string(data)}); err != nil {
		return err
	}

	p.log.Debug("published message", "stream", stream)
	return nil
}

// Close is a no-op; the underlying Redis client is owned by the caller
func (p *StreamPublisher) Close() error {
	return nil
}

// MemoryPublisher records published messages for tests
type MemoryPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

// NewMemoryPublisher creates an in-memory publisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{messages: make(map[string][][]byte)}
}

// Publish records the marshaled payload
func (p *MemoryPublisher) Publish(ctx context.Context, stream string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", stream, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[stream] = append(p.messages[stream], data)
	return nil
}

// Messages returns everything published to a stream so far
func (p *MemoryPublisher) Messages(stream string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.messages[stream]))
	copy(out, p.messages[stream])
	return out
}

// Close clears recorded messages
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = make(map[string][][]byte)
	return nil
}
