package retailpipe

import (
	"fmt"
	"time"

	"github.com/edgeflare/retailpipe/pkg/entity"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer"
	"github.com/edgeflare/retailpipe/pkg/pipeline/peer/kafka"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	topicPartitions int32
	topicReplicas   int16
	topicRetention  time.Duration
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Create the entity topics on Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheme, _ := peer.SplitAddress(cfg.Publisher.Address); scheme != peer.SchemeKafka {
			return fmt.Errorf("topics can only be provisioned on kafka, got %s", scheme)
		}

		kcfg, err := kafka.NewConfig(cfg.Publisher)
		if err != nil {
			return err
		}
		admin, err := kafka.NewAdmin(kcfg, log)
		if err != nil {
			return err
		}
		defer admin.Close()

		topics := make([]string, 0, len(entity.Kinds()))
		for _, k := range entity.Kinds() {
			topics = append(topics, k.Topic())
		}

		created, err := admin.EnsureTopics(cmd.Context(), topics, kafka.TopicSpec{
			Partitions: topicPartitions,
			Replicas:   topicReplicas,
			Retention:  topicRetention,
		})
		if err != nil {
			return err
		}
		log.Info("topics ready", zap.Strings("topics", topics), zap.Strings("created", created))
		return nil
	},
}

func init() {
	def := kafka.DefaultTopicSpec()
	topicsCmd.Flags().Int32Var(&topicPartitions, "partitions", def.Partitions, "partitions per topic")
	topicsCmd.Flags().Int16Var(&topicReplicas, "replicas", def.Replicas, "replication factor")
	topicsCmd.Flags().DurationVar(&topicRetention, "retention", def.Retention, "message retention")
}
