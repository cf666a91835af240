package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	topics  map[string]sarama.TopicDetail
	created []string
}

func (f *fakeAdmin) ListTopics() (map[string]sarama.TopicDetail, error) {
	return f.topics, nil
}

func (f *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	f.topics[topic] = *detail
	f.created = append(f.created, topic)
	return nil
}

func (f *fakeAdmin) Close() error { return nil }

func TestEnsureTopics(t *testing.T) {
	fake := &fakeAdmin{topics: map[string]sarama.TopicDetail{"stores": {NumPartitions: 3}}}
	a := &Admin{admin: fake}

	created, err := a.EnsureTopics(context.Background(),
		[]string{"stores", "products", "customers", "products"},
		TopicSpec{Partitions: 2, Replicas: 1, Retention: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, []string{"products", "customers"}, created)
	assert.Equal(t, int32(3), fake.topics["stores"].NumPartitions)
	assert.Equal(t, int32(2), fake.topics["products"].NumPartitions)
	require.Contains(t, fake.topics["customers"].ConfigEntries, "retention.ms")
	assert.Equal(t, "3600000", *fake.topics["customers"].ConfigEntries["retention.ms"])
}

func TestEnsureTopicsCancelled(t *testing.T) {
	fake := &fakeAdmin{topics: map[string]sarama.TopicDetail{}}
	a := &Admin{admin: fake}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.EnsureTopics(ctx, []string{"stores"}, DefaultTopicSpec())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.created)
}
