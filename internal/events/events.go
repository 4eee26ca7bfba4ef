// Package events translates content lifecycle events into index operations
// and applies them to every index that receives the event's category.
package events

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// Kind is a content lifecycle event.
type Kind string

const (
	Saved             Kind = "saved"
	Published         Kind = "published"
	Unpublished       Kind = "unpublished"
	Moved             Kind = "moved"
	Trashed           Kind = "trashed"
	Deleted           Kind = "deleted"
	EmptiedRecycleBin Kind = "emptied_recycle_bin"
	MemberSaved       Kind = "member_saved"
	MemberDeleted     Kind = "member_deleted"
)

// Removes reports whether the event takes items out of the tree.
func (k Kind) Removes() bool {
	switch k {
	case Deleted, EmptiedRecycleBin, MemberDeleted:
		return true
	}
	return false
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case Saved, Published, Unpublished, Moved, Trashed, Deleted, EmptiedRecycleBin, MemberSaved, MemberDeleted:
		return true
	}
	return false
}

// Item is the current state of one content item.
// For a Moved event, Items holds the moved item and all its descendants.
type Item struct {
	ID                string            `json:"id"`
	Category          valueset.Category `json:"category"`
	ItemType          string            `json:"itemType"`
	Path              valueset.Path     `json:"path"`
	Key               string            `json:"key,omitempty"`
	Published         bool              `json:"published"`
	PublishedCultures []string          `json:"publishedCultures,omitempty"`
	// Cultures lists the item's variants; empty for invariant items.
	Cultures []string        `json:"cultures,omitempty"`
	Values   valueset.Values `json:"values"`
	// CultureValues holds the per-culture field values of a variant item.
	CultureValues map[string]valueset.Values `json:"cultureValues,omitempty"`
}

// Event is one lifecycle notification.
type Event struct {
	Kind     Kind              `json:"kind"`
	Category valueset.Category `json:"category"`
	Items    []Item            `json:"items,omitempty"`
	// IDs names removed items for Deleted, EmptiedRecycleBin and MemberDeleted.
	IDs []string `json:"ids,omitempty"`
}

// Validate checks that the event is self-consistent.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown category %q", e.Category)
	}
	isMember := e.Kind == MemberSaved || e.Kind == MemberDeleted
	if isMember != (e.Category == valueset.CategoryMember) {
		return fmt.Errorf("event %s does not apply to category %s", e.Kind, e.Category)
	}
	for _, it := range e.Items {
		if it.Category != "" && it.Category != e.Category {
			return fmt.Errorf("item %s has category %s in a %s event", it.ID, it.Category, e.Category)
		}
	}
	return nil
}

// ValueSets expands an item into its invariant value set plus one per culture.
// Culture fields are stored as "<field>_<culture>" on every value set.
func (it Item) ValueSets(category valueset.Category, protected bool) []*valueset.ValueSet {
	base := &valueset.ValueSet{
		ID:                it.ID,
		Category:          category,
		ItemType:          it.ItemType,
		Path:              it.Path,
		Key:               it.Key,
		Published:         it.Published,
		PublishedCultures: lowerAll(it.PublishedCultures),
		Protected:         protected,
		Values:            it.Values.Clone(),
	}
	for _, c := range it.Cultures {
		for _, f := range it.CultureValues[c] {
			base.Values.Set(f.Name+"_"+strings.ToLower(c), f.Values...)
		}
	}

	out := []*valueset.ValueSet{base}
	for _, c := range it.Cultures {
		v := base.Clone()
		v.ID = valueset.VariantID(it.ID, c)
		for _, f := range it.CultureValues[c] {
			v.Values.Set(f.Name, f.Values...)
		}
		out = append(out, v)
	}
	return out
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
