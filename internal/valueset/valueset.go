// Package valueset defines the unit of indexable data and the operations
// submitted to an index writer.
package valueset

import (
	"fmt"
	"strings"
)

// Category groups value sets logically.
type Category string

const (
	CategoryContent Category = "content"
	CategoryMedia   Category = "media"
	CategoryMember  Category = "member"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryContent, CategoryMedia, CategoryMember:
		return true
	}
	return false
}

// RecycleBinRoot returns the recycle-bin root id for the category,
// or "" when the category has no recycle bin.
func RecycleBinRoot(c Category) string {
	switch c {
	case CategoryContent:
		return ContentRecycleBinID
	case CategoryMedia:
		return MediaRecycleBinID
	}
	return ""
}

// EntityType is the kind of entity an administrative search targets.
type EntityType string

const (
	EntityDocument EntityType = "Document"
	EntityMedia    EntityType = "Media"
	EntityMember   EntityType = "Member"
)

// ParseEntityType accepts the entity type names case-insensitively.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document", "content":
		return EntityDocument, nil
	case "media":
		return EntityMedia, nil
	case "member":
		return EntityMember, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Category maps the entity type to the index category holding it.
func (e EntityType) Category() Category {
	switch e {
	case EntityMedia:
		return CategoryMedia
	case EntityMember:
		return CategoryMember
	default:
		return CategoryContent
	}
}

// CultureSeparator splits a composite "<contentId>|<culture>" id.
const CultureSeparator = "|"

// NodeID returns the leading content id of a possibly composite id.
func NodeID(id string) string {
	if i := strings.Index(id, CultureSeparator); i >= 0 {
		return id[:i]
	}
	return id
}

// CultureOf returns the culture part of a composite id, "" for invariant ids.
func CultureOf(id string) string {
	if i := strings.Index(id, CultureSeparator); i >= 0 {
		return strings.ToLower(id[i+1:])
	}
	return ""
}

// VariantID builds the composite id of one culture variant.
func VariantID(nodeID, culture string) string {
	return nodeID + CultureSeparator + strings.ToLower(culture)
}

// ValueSet is the per-item payload stored in an index.
type ValueSet struct {
	// ID is unique within an index; may be composite "<contentId>|<culture>".
	ID       string   `json:"id" yaml:"id"`
	Category Category `json:"category" yaml:"category"`
	// ItemType is the content-type alias.
	ItemType string `json:"itemType" yaml:"item_type"`
	Path     Path   `json:"path" yaml:"path"`
	// Key is the item's GUID, optional.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	Published         bool     `json:"published" yaml:"published"`
	PublishedCultures []string `json:"publishedCultures,omitempty" yaml:"published_cultures,omitempty"`
	Protected         bool     `json:"protected" yaml:"protected"`

	Values Values `json:"values" yaml:"values"`
}

// NodeID returns the leading content id of the value set's id.
func (v *ValueSet) NodeID() string { return NodeID(v.ID) }

// Culture returns the culture of a variant value set, "" if invariant.
func (v *ValueSet) Culture() string { return CultureOf(v.ID) }

// IsPublishedIn reports whether the value set is published, and for a
// variant, whether its own culture is among the published cultures.
func (v *ValueSet) IsPublishedIn() bool {
	if !v.Published {
		return false
	}
	culture := v.Culture()
	if culture == "" {
		return true
	}
	for _, c := range v.PublishedCultures {
		if strings.EqualFold(c, culture) {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants a writer relies on.
func (v *ValueSet) Validate() error {
	if v == nil {
		return fmt.Errorf("value set is nil")
	}
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("value set id is empty")
	}
	if !v.Category.Valid() {
		return fmt.Errorf("value set %s: unknown category %q", v.ID, v.Category)
	}
	if v.Category != CategoryMember && v.Path == "" {
		return fmt.Errorf("value set %s: path is empty", v.ID)
	}
	for _, f := range v.Values {
		if strings.HasPrefix(f.Name, SystemFieldPrefix) {
			return fmt.Errorf("value set %s: field %q uses the reserved prefix", v.ID, f.Name)
		}
		for _, val := range f.Values {
			if !supportedValue(val) {
				return fmt.Errorf("value set %s: field %q has unsupported value type %T", v.ID, f.Name, val)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the value set.
func (v *ValueSet) Clone() *ValueSet {
	c := *v
	c.PublishedCultures = append([]string(nil), v.PublishedCultures...)
	c.Values = v.Values.Clone()
	return &c
}
