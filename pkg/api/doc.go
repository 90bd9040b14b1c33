// Package api contains the core types of the pathways service: the pathway
// data model, draft validation, the Service and Directory interfaces, and
// observers for lifecycle events.
//
// Most users interact with the higher-level pathways package, which wires
// these types to a storage backend. The api package is intended for custom
// integrations such as alternative transports or storage layers.
//
// # Pathways
//
// A pathway is a short, linearly ordered list of items. Each item references
// a block in a content library (or a course) by its usage key and carries
// free-form data such as notes. A pathway holds two copies of its content:
// the draft that authors edit and the published copy that learners see.
// Publish copies the draft over the published data; Revert does the reverse.
//
// # Validation
//
// Clean validates draft data before it is stored. It fills in defaults,
// assigns ids to new items and rejects items that reference another
// pathway's blocks.
//
// # Observability
//
// Observer receives a callback for every stored mutation and every failed
// operation. LoggingObserver writes them with log/slog and BasicMetrics
// keeps in-process counters; NewCompositeObserver combines several.
package api
