package persistence

// Persistence bundles the store interfaces so the service
// can depend on a single abstraction.
type Persistence struct {
	Pathways PathwayStore
	Events   EventStore
}
