package kafka

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// TopicSpec describes topics created by EnsureTopics.
type TopicSpec struct {
	Partitions int32
	Replicas   int16
	Retention  time.Duration
}

// DefaultTopicSpec is a single partition, single replica topic retained for 7 days.
func DefaultTopicSpec() TopicSpec {
	return TopicSpec{Partitions: 1, Replicas: 1, Retention: 7 * 24 * time.Hour}
}

type clusterAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
	Close() error
}

// Admin manages topics of the cluster.
type Admin struct {
	admin  clusterAdmin
	logger *zap.Logger
}

// NewAdmin connects a cluster admin using the same settings as the producer.
func NewAdmin(config *Config, logger *zap.Logger) (*Admin, error) {
	conf, err := config.ToSaramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}

	admin, err := sarama.NewClusterAdmin(config.GetBrokers(), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster admin: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{admin: admin, logger: logger}, nil
}

// ListTopics lists all topics
func (a *Admin) ListTopics() (map[string]sarama.TopicDetail, error) {
	topics, err := a.admin.ListTopics()
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

// EnsureTopics creates the topics that do not exist yet and returns their
// names. Existing topics are left as they are.
func (a *Admin) EnsureTopics(ctx context.Context, topics []string, spec TopicSpec) ([]string, error) {
	existing, err := a.ListTopics()
	if err != nil {
		return nil, err
	}

	var created []string
	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if _, ok := existing[topic]; ok || slices.Contains(created, topic) {
			continue
		}

		detail := &sarama.TopicDetail{
			NumPartitions:     max(spec.Partitions, 1),
			ReplicationFactor: max(spec.Replicas, 1),
		}
		if spec.Retention > 0 {
			detail.ConfigEntries = map[string]*string{
				"retention.ms": stringPtr(strconv.FormatInt(spec.Retention.Milliseconds(), 10)),
			}
		}

		if err := a.admin.CreateTopic(topic, detail, false); err != nil {
			return created, fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		a.logger.Info("topic created", zap.String("topic", topic), zap.Int32("partitions", detail.NumPartitions))
		created = append(created, topic)
	}
	return created, nil
}

func (a *Admin) Close() error {
	return a.admin.Close()
}

func stringPtr(s string) *string {
	return &s
}
