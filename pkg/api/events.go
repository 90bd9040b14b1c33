package api

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a pathway history event.
type EventType string

const (
	EventPathwayCreated      EventType = "pathway.created"
	EventPathwayDraftUpdated EventType = "pathway.draft_updated"
	EventPathwayOwnerChanged EventType = "pathway.owner_changed"
	EventPathwayPublished    EventType = "pathway.published"
	EventPathwayReverted     EventType = "pathway.reverted"
	EventPathwayDeleted      EventType = "pathway.deleted"
)

// PathwayEvent is a minimal append-only history record for audit/debugging.
// It records who did what and when, not the data itself.
type PathwayEvent struct {
	PathwayUUID uuid.UUID
	At          time.Time
	Type        EventType

	// Username of the principal that caused the event.
	Actor string

	// Small, human-oriented details (e.g. the new owner).
	// Keep this low-volume: do NOT dump pathway data here.
	Detail string
}
