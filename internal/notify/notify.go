package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/VerticalLabs-ai/recall/internal/engine"
)

const notificationStream = "recall:notifications"

// AuditSink persists audit entries durably.
type AuditSink interface {
	InsertAuditLog(ctx context.Context, entry engine.AuditEntry) error
}

// Service delivers engine side effects: notifications over a Redis
// stream, audit entries to the durable sink. A nil Redis client degrades
// to log-only notifications.
type Service struct {
	rdb    *redis.Client
	audit  AuditSink
	logger *zap.Logger
}

// New creates a notification service. An empty redisURL disables the
// stream and notifications are logged only.
func New(redisURL string, audit AuditSink, logger *zap.Logger) (*Service, error) {
	svc := &Service{audit: audit, logger: logger}
	if redisURL == "" {
		return svc, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	svc.rdb = rdb
	return svc, nil
}

// Close shuts down the Redis client.
func (s *Service) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// CreateNotification publishes to the notification stream.
func (s *Service) CreateNotification(ctx context.Context, n engine.Notification) error {
	if s.rdb == nil {
		s.logger.Info("notification (no stream)",
			zap.String("kind", n.Kind), zap.String("title", n.Title))
		return nil
	}

	payload, err := json.Marshal(struct {
		ID string `json:"id"`
		engine.Notification
		Timestamp time.Time `json:"timestamp"`
	}{uuid.New().String(), n, time.Now()})
	if err != nil {
		return err
	}

	_, err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: notificationStream,
		Values: map[string]interface{}{"data": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	s.logger.Debug("published notification",
		zap.String("kind", n.Kind), zap.String("agent", n.AgentID))
	return nil
}

// CreateAuditLog writes to the durable audit sink.
func (s *Service) CreateAuditLog(ctx context.Context, entry engine.AuditEntry) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.InsertAuditLog(ctx, entry)
}
