// Package kafka publishes messages to Apache Kafka (or any Kafka API
// compatible broker such as Redpanda) through a sarama AsyncProducer.
//
// Every message is produced with acks=all, a bounded number of retries and
// the hash partitioner, so messages sharing a key land on the same partition
// in send order. A message with an empty key is produced without a key.
//
// Send waits at most MaxBlock for buffer space; the returned Future waits at
// most DeliveryTimeout for the broker confirmation. Both bounds surface as
// peer.ErrPublishTimeout.
//
// Topic naming:
// - Case-sensitive, no spaces
// - Valid chars: alphanumeric, `.`, `-`, `_`
// - Recommended max length: 249 bytes
//
// Options (peer.Config.Options):
//
//	version: "2.1.0"
//	idempotent: true
//	sasl: {enable: true, username: u, password: p, algorithm: sha512}
//	tls: {enable: true, caFile: /etc/ssl/ca.pem}
package kafka
