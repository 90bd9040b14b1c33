package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/petrijr/pathways/pkg/keys"
)

// MaxItems caps the number of items in a pathway.
const MaxItems = 100

var slugRE = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

// ValidationError reports client data that cannot be saved. Field is the
// JSON path of the offending value, when known.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// NewItemID returns a short random id. Pathways are capped at MaxItems, so
// eight hex characters are plenty to keep ids unique within one pathway.
func NewItemID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// Clean validates d and fills in defaults. It returns a new value; d is not
// modified. Ids of existing items are kept as given so that pathway usage
// keys stay stable across edits.
func Clean(d Data) (Data, error) {
	out := d.Clone()
	if out.Title == "" {
		out.Title = DefaultTitle
	}
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	if out.Items == nil {
		out.Items = []Item{}
	}
	if len(out.Items) > MaxItems {
		return Data{}, invalid("items", "a pathway may contain at most %d items", MaxItems)
	}

	seen := make(map[string]struct{}, len(out.Items))
	for i := range out.Items {
		it := &out.Items[i]
		field := fmt.Sprintf("items[%d]", i)

		if it.OriginalUsageID == "" {
			return Data{}, invalid(field+".original_usage_id", "this field is required")
		}
		orig, err := keys.ParseUsageKey(it.OriginalUsageID)
		if err != nil {
			return Data{}, invalid(field+".original_usage_id", "Invalid asset key")
		}
		// Items must point at an original asset, never at another pathway's copy.
		if _, ok := orig.(keys.PathwayUsageKey); ok {
			return Data{}, invalid(field+".original_usage_id", "Invalid asset key")
		}

		if it.Data == nil {
			it.Data = map[string]any{}
		}
		if it.ID == "" {
			continue
		}
		if !slugRE.MatchString(it.ID) {
			return Data{}, invalid(field+".id", "enter a valid slug consisting of letters, numbers, underscores or hyphens")
		}
		if _, dup := seen[it.ID]; dup {
			return Data{}, invalid(field+".id", "duplicate item id %q", it.ID)
		}
		seen[it.ID] = struct{}{}
	}

	// Generated ids must not collide with ids the client supplied.
	for i := range out.Items {
		it := &out.Items[i]
		for it.ID == "" {
			id := NewItemID()
			if _, dup := seen[id]; !dup {
				it.ID = id
				seen[id] = struct{}{}
			}
		}
	}
	return out, nil
}

// EmptyData is the cleaned zero value; new pathways start with it as their
// published copy.
func EmptyData() Data {
	d, _ := Clean(Data{})
	return d
}
