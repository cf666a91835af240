// Package nats publishes messages to NATS JetStream.
//
// A topic maps to the subject `<prefix>.<topic>`; every subject of the prefix
// is captured by one file-backed stream, so a PubAck confirms the message is
// stored with the stream's replication. The message key travels in the
// Retail-Key header.
//
// NATS subject patterns:
//   - Case-sensitive, dot-separated, no spaces
//   - Valid chars: alphanumeric, `-` or `_`
//   - Max length: 255 bytes
//
// Messages are published one at a time in send order by a single worker, so
// messages sharing a key keep their relative order.
package nats
