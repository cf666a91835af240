// Package transform applies per-record transformations to entity records on their way
// to the bus. It's inspired by Debezium's [Single Message Transformations (SMTs)](https://docs.confluent.io/platform/current/connect/transforms/overview.html):
// transformations are registered by name, configured with a loose map and chained.
//
// The built-in "sanitize" transformation replaces PII (email, phone) with salted
// SHA-256 digests; "drop" removes fields such as the storage identifier. Operators
// can chain "extract" (keep a field subset), "replace" (rename fields) and
// "filter" (skip records by a field value) after them.
package transform
