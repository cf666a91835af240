//go:build integration

package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer/kafka"
	"github.com/edgeflare/retailpipe/pkg/pipeline/source"
	_ "github.com/edgeflare/retailpipe/pkg/pipeline/source/pg"
	"github.com/edgeflare/retailpipe/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("retail"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func startRedpanda(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redpanda: %v", err)
		}
	})

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)
	return broker
}

func consume(t *testing.T, broker, topic string, n int) []*sarama.ConsumerMessage {
	t.Helper()

	consumer, err := sarama.NewConsumer([]string{broker}, sarama.NewConfig())
	require.NoError(t, err)
	defer consumer.Close()

	pc, err := consumer.ConsumePartition(topic, 0, sarama.OffsetOldest)
	require.NoError(t, err)
	defer pc.Close()

	var msgs []*sarama.ConsumerMessage
	timeout := time.After(30 * time.Second)
	for len(msgs) < n {
		select {
		case m := <-pc.Messages():
			msgs = append(msgs, m)
		case <-timeout:
			t.Fatalf("consumed %d of %d messages from %s", len(msgs), n, topic)
		}
	}
	return msgs
}

func TestPostgresToKafka(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	connStr := startPostgres(ctx, t)
	broker := startRedpanda(ctx, t)

	sizes := store.Sizes{
		Networks:  []store.Network{{Name: "Пикча", Stores: 3, Description: "test"}},
		Products:  4,
		Purchases: 10,
	}
	ds := store.NewGenerator(store.DefaultSeed, sizes, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)).Generate()
	dir := t.TempDir()
	_, err := store.Write(dir, ds)
	require.NoError(t, err)

	imp, err := store.OpenImporter(ctx, connStr, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = imp.Close(context.Background()) })
	require.NoError(t, store.WaitReady(ctx, imp, 30*time.Second, logger))
	imported, err := store.ImportDir(ctx, imp, dir, true, logger)
	require.NoError(t, err)

	cfg := peer.DefaultConfig()
	cfg.Address = "kafka://" + broker

	kcfg, err := kafka.NewConfig(cfg)
	require.NoError(t, err)
	admin, err := kafka.NewAdmin(kcfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	var topics []string
	for _, k := range entity.Kinds() {
		topics = append(topics, k.Topic())
	}
	_, err = admin.EnsureTopics(ctx, topics, kafka.DefaultTopicSpec())
	require.NoError(t, err)

	reader, err := source.Open(ctx, connStr, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close(context.Background()) })

	publisher, err := peer.Open(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	runner := pipeline.NewRunner(reader, publisher,
		pipeline.WithLogger(logger),
		pipeline.WithSalt("integration"),
		pipeline.WithWindow(8),
	)
	report, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateDone, runner.State())

	for _, k := range entity.Kinds() {
		assert.Equal(t, imported[k], report.Counts[k], k.String())
	}

	msgs := consume(t, broker, entity.KindCustomer.Topic(), imported[entity.KindCustomer])
	for _, m := range msgs {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(m.Value, &doc))
		assert.NotContains(t, doc, "email")
		assert.NotContains(t, doc, "phone")
		assert.NotContains(t, doc, "_id")
		assert.Len(t, doc["email_hash"], 64)
		assert.Equal(t, doc["customer_id"], string(m.Key))
	}
}
