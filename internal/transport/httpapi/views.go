package httpapi

import (
	"time"

	"github.com/petrijr/pathways/internal/learningcontext"
	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

type itemJSON struct {
	// UsageID is the block's usage key within the pathway. It is derived
	// and ignored on input.
	UsageID         string         `json:"usage_id,omitempty"`
	OriginalUsageID string         `json:"original_usage_id"`
	ID              string         `json:"id"`
	Data            map[string]any `json:"data"`
}

type dataJSON struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Items       []itemJSON     `json:"items"`
	Data        map[string]any `json:"data"`
}

type pathwayJSON struct {
	ID             string   `json:"id"`
	OwnerUserID    *int64   `json:"owner_user_id"`
	OwnerGroupName *string  `json:"owner_group_name"`
	DraftData      dataJSON `json:"draft_data"`
	PublishedData  dataJSON `json:"published_data"`
}

type eventJSON struct {
	Type   api.EventType `json:"type"`
	Actor  string        `json:"actor"`
	Detail string        `json:"detail,omitempty"`
	At     time.Time     `json:"at"`
}

type definitionJSON struct {
	Context      string `json:"context"`
	BlockType    string `json:"block_type"`
	DefinitionID string `json:"definition_id"`
	OLXPath      string `json:"olx_path"`
}

type blockJSON struct {
	UsageKey         string         `json:"usage_key"`
	OriginalUsageKey string         `json:"original_usage_key,omitempty"`
	Definition       definitionJSON `json:"definition"`
}

func toPathwayJSON(pw *api.Pathway) pathwayJSON {
	out := pathwayJSON{
		ID:            pw.Key().String(),
		OwnerUserID:   pw.Owner.UserID,
		DraftData:     toDataJSON(pw.Key(), pw.Draft),
		PublishedData: toDataJSON(pw.Key(), pw.Published),
	}
	if pw.Owner.GroupName != "" {
		name := pw.Owner.GroupName
		out.OwnerGroupName = &name
	}
	return out
}

func toDataJSON(key keys.PathwayKey, d api.Data) dataJSON {
	out := dataJSON{
		Title:       d.Title,
		Description: d.Description,
		Items:       make([]itemJSON, 0, len(d.Items)),
		Data:        d.Extra,
	}
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	for _, it := range d.Items {
		ij := itemJSON{OriginalUsageID: it.OriginalUsageID, ID: it.ID, Data: it.Data}
		if ij.Data == nil {
			ij.Data = map[string]any{}
		}
		// Stored items were cleaned, so the key always parses.
		if uk, err := it.UsageKey(key); err == nil {
			ij.UsageID = uk.String()
		}
		out.Items = append(out.Items, ij)
	}
	return out
}

// toData converts client input to model data. Missing fields are left for
// api.Clean to default.
func (d dataJSON) toData() api.Data {
	out := api.Data{
		Title:       d.Title,
		Description: d.Description,
		Extra:       d.Data,
	}
	if d.Items != nil {
		out.Items = make([]api.Item, len(d.Items))
		for i, it := range d.Items {
			out.Items[i] = api.Item{ID: it.ID, OriginalUsageID: it.OriginalUsageID, Data: it.Data}
		}
	}
	return out
}

func toEventsJSON(evs []api.PathwayEvent) []eventJSON {
	out := make([]eventJSON, len(evs))
	for i, ev := range evs {
		out[i] = eventJSON{Type: ev.Type, Actor: ev.Actor, Detail: ev.Detail, At: ev.At}
	}
	return out
}

func toDefinitionJSON(d learningcontext.Definition) definitionJSON {
	out := definitionJSON{
		BlockType:    d.BlockType,
		DefinitionID: d.DefinitionID,
		OLXPath:      d.OLXPath,
	}
	if d.Context != nil {
		out.Context = d.Context.String()
	}
	return out
}

// optional records whether a JSON field was present, so that an explicit
// null can be told apart from an omitted field.
type optional[T any] struct {
	Set   bool
	Value *T
}

func (o *optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := api.UnmarshalJSONData(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type createRequestJSON struct {
	UUID           *string          `json:"uuid"`
	OwnerGroupName optional[string] `json:"owner_group_name"`
	DraftData      *dataJSON        `json:"draft_data"`
}

// ownerGroupName returns the requested owning group. A present null names
// no group at all, which never validates.
func (r createRequestJSON) ownerGroupName() *string {
	if !r.OwnerGroupName.Set {
		return nil
	}
	if r.OwnerGroupName.Value == nil {
		return new(string)
	}
	return r.OwnerGroupName.Value
}

type updateRequestJSON struct {
	OwnerUserID    optional[int64]  `json:"owner_user_id"`
	OwnerGroupName optional[string] `json:"owner_group_name"`
	DraftData      *dataJSON        `json:"draft_data"`
}

func (r updateRequestJSON) toRequest() api.UpdateRequest {
	var req api.UpdateRequest
	if r.DraftData != nil {
		d := r.DraftData.toData()
		req.Draft = &d
	}
	// A present field, even null, asks for an owner change.
	if r.OwnerUserID.Set {
		var id int64
		if r.OwnerUserID.Value != nil {
			id = *r.OwnerUserID.Value
		}
		req.OwnerUserID = &id
	}
	if r.OwnerGroupName.Set {
		var name string
		if r.OwnerGroupName.Value != nil {
			name = *r.OwnerGroupName.Value
		}
		req.OwnerGroupName = &name
	}
	return req
}
