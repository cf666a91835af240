// Package pipeline forwards the retail entities of an operational store to a
// streaming bus.
//
// A Runner reads every kind in a fixed order (stores, products, customers,
// purchases), passes each record through the transformation chain of its kind
// (storage id removal, PII sanitizing, configured extras) and publishes it to
// the kind's topic keyed by its natural identifier.
//
// A run is fail-fast: the first failed read, transformation or publish stops
// it after all outstanding sends were awaited. The returned *KindError names
// the failing kind and the number of its records confirmed in order, which is
// where a rerun may resume.
package pipeline
