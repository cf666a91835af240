// Package store provides the tooling around the operational store: a
// deterministic fixture generator writing one JSON file per document, and
// importers loading such a directory into MongoDB or PostgreSQL.
//
// The PostgreSQL schema is managed with embedded golang-migrate migrations;
// every collection is a table of JSONB documents.
package store
