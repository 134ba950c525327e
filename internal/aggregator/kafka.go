package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/mediamatic/ikdisplay/internal/logging"
	"github.com/mediamatic/ikdisplay/internal/models"
	"github.com/mediamatic/ikdisplay/internal/store"
)

// Kafka streams notifications to a topic, keyed by feed handle so one
// feed's notifications stay ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger logging.Logger
}

// NewKafka creates a producer-backed aggregator.
func NewKafka(brokers []string, topic string, logger logging.Logger) (*Kafka, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("ikdisplay"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Kafka{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

func (a *Kafka) Close() {
	a.client.Close()
}

// Client exposes the underlying producer client for health checks.
func (a *Kafka) Client() *kgo.Client {
	return a.client
}

// HealthCheck pings the brokers.
func (a *Kafka) HealthCheck(ctx context.Context) error {
	if err := a.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

func (a *Kafka) ProcessNotifications(feed *store.Feed, notifications []models.Notification) {
	records := make([]*kgo.Record, 0, len(notifications))
	for _, n := range notifications {
		value, err := json.Marshal(n)
		if err != nil {
			a.logger.WithError(err).WithFields(logging.Fields{
				"feed": feed.Handle,
			}).Error("Failed to marshal notification")
			continue
		}
		records = append(records, &kgo.Record{
			Topic: a.topic,
			Key:   []byte(feed.Handle),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "feed", Value: []byte(feed.Handle)},
				{Key: "language", Value: []byte(feed.Language)},
			},
		})
	}
	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := a.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		a.logger.WithError(err).WithFields(logging.Fields{
			"feed":  feed.Handle,
			"count": len(records),
		}).Error("Failed to produce notifications")
	}
}
