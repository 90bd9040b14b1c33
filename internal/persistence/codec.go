package persistence

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"time"

	"github.com/petrijr/pathways/pkg/api"
)

// EncodeData serializes pathway data as JSON. Item and extra data are
// arbitrary client JSON; numbers are kept as json.Number so the stored text
// round-trips exactly.
func EncodeData(d api.Data) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeData is the inverse of EncodeData. Empty input decodes to the
// cleaned zero value.
func DecodeData(raw []byte) (api.Data, error) {
	if len(raw) == 0 {
		return api.EmptyData(), nil
	}
	var d api.Data
	if err := api.UnmarshalJSONData(raw, &d); err != nil {
		return api.Data{}, err
	}
	if d.Items == nil {
		d.Items = []api.Item{}
	}
	if d.Extra == nil {
		d.Extra = map[string]any{}
	}
	for i := range d.Items {
		if d.Items[i].Data == nil {
			d.Items[i].Data = map[string]any{}
		}
	}
	return d, nil
}

// encodeGob serializes fixed-shape payloads.
func encodeGob[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}

// Timestamps are stored as unix nanoseconds in every backend.
func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func withTimestamp(ev api.PathwayEvent) api.PathwayEvent {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
