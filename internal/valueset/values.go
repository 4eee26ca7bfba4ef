package valueset

import (
	"fmt"
)

// SystemFieldPrefix marks field names owned by the index itself.
const SystemFieldPrefix = "__"

// System fields written for every value set.
const (
	FieldID        = "__id"
	FieldNodeID    = "__nodeId"
	FieldCategory  = "__category"
	FieldItemType  = "__itemType"
	FieldPath      = "__path"
	FieldPathIDs   = "__pathIds"
	FieldKey       = "__key"
	FieldPublished = "__published"
	FieldCulture   = "__culture"
)

// Field is one named, possibly multi-valued, entry of a value set.
type Field struct {
	Name   string `json:"name" yaml:"name"`
	Values []any  `json:"values" yaml:"values"`
}

// Values is the ordered field bag of a value set.
type Values []Field

// Get returns the values of the named field.
func (vs Values) Get(name string) ([]any, bool) {
	for _, f := range vs {
		if f.Name == name {
			return f.Values, true
		}
	}
	return nil, false
}

// First returns the first value of the named field rendered as a string.
func (vs Values) First(name string) string {
	vals, ok := vs.Get(name)
	if !ok || len(vals) == 0 {
		return ""
	}
	return fmt.Sprint(vals[0])
}

// Set replaces the named field in place or appends it.
func (vs *Values) Set(name string, values ...any) {
	for i := range *vs {
		if (*vs)[i].Name == name {
			(*vs)[i].Values = values
			return
		}
	}
	*vs = append(*vs, Field{Name: name, Values: values})
}

// Add appends values to the named field, creating it if needed.
func (vs *Values) Add(name string, values ...any) {
	for i := range *vs {
		if (*vs)[i].Name == name {
			(*vs)[i].Values = append((*vs)[i].Values, values...)
			return
		}
	}
	*vs = append(*vs, Field{Name: name, Values: values})
}

// Remove drops the named field.
func (vs *Values) Remove(name string) {
	out := (*vs)[:0]
	for _, f := range *vs {
		if f.Name != name {
			out = append(out, f)
		}
	}
	*vs = out
}

// Names lists the field names in order.
func (vs Values) Names() []string {
	names := make([]string, len(vs))
	for i, f := range vs {
		names[i] = f.Name
	}
	return names
}

// Clone deep-copies the field bag.
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for i, f := range vs {
		out[i] = Field{Name: f.Name, Values: append([]any(nil), f.Values...)}
	}
	return out
}

func supportedValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
