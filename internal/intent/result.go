package intent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ShapedResult is either a shaped value or an error marker. Its JSON form
// is the value itself or {"error": "..."}.
type ShapedResult struct {
	Value any
	Err   string
}

// Failed returns the generic failure marker for i.
func Failed(i Intent) ShapedResult {
	return ShapedResult{Err: fmt.Sprintf("Failed to fetch %s data.", i)}
}

func (r ShapedResult) IsError() bool { return r.Err != "" }

// Len reports the number of items in a list value, 1 for anything else.
func (r ShapedResult) Len() int {
	if r.Value == nil {
		return 0
	}
	v := reflect.ValueOf(r.Value)
	if v.Kind() == reflect.Slice {
		return v.Len()
	}
	return 1
}

func (r ShapedResult) MarshalJSON() ([]byte, error) {
	if r.IsError() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err})
	}
	return json.Marshal(r.Value)
}

// AggregatedData holds one result per processed intent.
type AggregatedData map[Intent]ShapedResult

// Keys returns the intents present, sorted by name.
func (d AggregatedData) Keys() []Intent {
	keys := make([]Intent, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}

// UnmarshalJSON decodes each entry into the typed value of its intent so
// copies read back from a cache behave like freshly shaped ones.
func (d *AggregatedData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(AggregatedData, len(raw))
	for name, entry := range raw {
		i := Intent(name)
		r, err := DecodeResult(i, entry)
		if err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		out[i] = r
	}
	*d = out
	return nil
}

// DecodeResult rebuilds a ShapedResult from its JSON form.
func DecodeResult(i Intent, entry []byte) (ShapedResult, error) {
	var marker struct {
		Error *string `json:"error"`
	}
	// list values do not decode into the marker struct
	if json.Unmarshal(entry, &marker) == nil && marker.Error != nil {
		return ShapedResult{Err: *marker.Error}, nil
	}

	v, err := decode(i, entry)
	if err != nil {
		return ShapedResult{}, err
	}
	return ShapedResult{Value: v}, nil
}
