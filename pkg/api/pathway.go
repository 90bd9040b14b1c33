package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/keys"
)

// DefaultTitle is used when draft data arrives without a title.
const DefaultTitle = "Pathway"

// Owner identifies who owns a pathway. At most one of UserID and GroupName
// is set; both may be empty for pathways whose owner was removed.
type Owner struct {
	UserID    *int64
	GroupName string
}

// OwnerUser returns an Owner for the given user id.
func OwnerUser(id int64) Owner {
	return Owner{UserID: &id}
}

// OwnerGroup returns an Owner for the named group.
func OwnerGroup(name string) Owner {
	return Owner{GroupName: name}
}

// Item is one entry in a pathway: a reference to a block that lives in a
// library, a course or another pathway, plus per-item data such as notes.
type Item struct {
	// ID is unique within the pathway. It becomes the usage id of the
	// block's pathway usage key.
	ID string `json:"id"`
	// OriginalUsageID is the usage key of the block being referenced.
	OriginalUsageID string `json:"original_usage_id"`
	// Data holds arbitrary item data like "notes".
	Data map[string]any `json:"data"`
}

// Data is the content of a pathway. Every pathway holds two copies: the
// draft being edited and the last published version.
type Data struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Items       []Item         `json:"items"`
	Extra       map[string]any `json:"data"`
}

// Pathway is a short, linearly ordered collection of blocks that a learner
// progresses through. It is a learning context in its own right.
type Pathway struct {
	UUID      uuid.UUID
	Owner     Owner
	Draft     Data
	Published Data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the pathway's context key.
func (p *Pathway) Key() keys.PathwayKey {
	return keys.NewPathwayKey(p.UUID)
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p *Pathway) Clone() *Pathway {
	if p == nil {
		return nil
	}
	out := *p
	if p.Owner.UserID != nil {
		id := *p.Owner.UserID
		out.Owner.UserID = &id
	}
	out.Draft = p.Draft.Clone()
	out.Published = p.Published.Clone()
	return &out
}

// Clone returns a deep copy of d. Extra and item data are copied through
// a JSON round trip since they are arbitrary JSON values.
func (d Data) Clone() Data {
	out := d
	out.Extra = cloneJSONMap(d.Extra)
	if d.Items != nil {
		out.Items = make([]Item, len(d.Items))
		for i, it := range d.Items {
			it.Data = cloneJSONMap(it.Data)
			out.Items[i] = it
		}
	}
	return out
}

func cloneJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		// Values that cannot be marshalled cannot have come from a client;
		// fall back to a shallow copy.
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	_ = UnmarshalJSONData(raw, &out)
	return out
}

// UnmarshalJSONData decodes client JSON keeping numbers as json.Number, so
// integers beyond float64 precision survive a round trip unchanged.
func UnmarshalJSONData(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

// UsageKey returns the pathway-specific usage key of item it within the
// pathway identified by pathway.
func (it Item) UsageKey(pathway keys.PathwayKey) (keys.PathwayUsageKey, error) {
	orig, err := keys.ParseUsageKey(it.OriginalUsageID)
	if err != nil {
		return keys.PathwayUsageKey{}, err
	}
	return keys.NewPathwayUsageKey(pathway, orig.BlockType(), it.ID, "")
}

// FindItem returns the item with the given id.
func (d Data) FindItem(id string) (Item, bool) {
	for _, it := range d.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
