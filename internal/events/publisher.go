package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mareye-api/internal/models"
)

// Publisher emits auth audit events. Publishing never fails the caller's request.
type Publisher interface {
	Publish(ctx context.Context, event models.AuthEvent)
}

type producer interface {
	ProduceMessage(ctx context.Context, key, value []byte, headers map[string]string) error
}

type KafkaPublisher struct {
	producer producer
	logger   *zap.Logger
	now      func() time.Time
}

func NewKafkaPublisher(p producer, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, logger: logger, now: time.Now}
}

func (k *KafkaPublisher) Publish(ctx context.Context, event models.AuthEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = k.now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("Failed to encode auth event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	// keyed by email so one user's events stay ordered within a partition
	headers := map[string]string{"event-type": event.Type}
	if err := k.producer.ProduceMessage(ctx, []byte(event.Email), value, headers); err != nil {
		k.logger.Warn("Failed to publish auth event", zap.String("type", event.Type), zap.Error(err))
	}
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.AuthEvent) {}
