// Package pathways manages LabXchange-style pathways: short, ordered
// collections of learning blocks that can be authored, published and
// reverted, and that act as learning contexts in their own right.
//
// # Core Concepts
//
//  1. Pathway
//  2. Service
//  3. Keys
//  4. Notifications
//
// # Pathway
//
// A Pathway holds two copies of its Data: the draft being edited and the
// last published version. Each Item references an existing block by its
// original usage key (in a content library or a course) and gets a
// pathway-specific usage key of the form
//
//	lx-pb:<pathway uuid>:<block type>:<item id>
//
// Draft data is cleaned on every save: missing titles and item ids are
// filled in, item ids must be unique slugs, references to other pathway
// blocks are rejected and at most MaxItems items are allowed.
//
// # Service
//
// Service is the management API. Only allowlisted users may call it;
// changing an owner is restricted to global staff. Backends:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//   - MongoDB
//
// Every mutation is recorded in an audit history readable with
// Service.History.
//
// # Notifications
//
// NewSQLiteBundle and NewLocalRunner additionally queue a change
// notification per mutation and deliver it to a notify.Sink, retrying
// failed deliveries with backoff.
//
// The REST API and the command-line tools live under cmd/.
package pathways
