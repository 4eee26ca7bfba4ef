package query

import (
	"strings"

	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// Fields names the searchable fields of one entity type.
type Fields struct {
	// Label is the item-name field; per-culture copies are "<Label>_<culture>".
	Label string `yaml:"label"`
	// Searchable fields are matched by prefix without boost.
	Searchable []string `yaml:"searchable"`
	// Filename fields are matched on their "_searchable" shadow.
	Filename []string `yaml:"filename"`
}

// DefaultFields returns the searchable fields per entity type.
func DefaultFields() map[valueset.EntityType]Fields {
	return map[valueset.EntityType]Fields{
		valueset.EntityDocument: {
			Label:      "nodeName",
			Searchable: []string{"urlName", "bodyText"},
		},
		valueset.EntityMedia: {
			Label:    "nodeName",
			Filename: []string{"umbracoFile"},
		},
		valueset.EntityMember: {
			Label:      "nodeName",
			Searchable: []string{"email", "loginName"},
		},
	}
}

// LabelFields returns the base label field plus one per culture.
func (f Fields) LabelFields(cultures []string) []string {
	if f.Label == "" {
		return nil
	}
	out := []string{f.Label}
	for _, c := range cultures {
		out = append(out, f.Label+"_"+strings.ToLower(c))
	}
	return out
}

// OtherFields returns the unboosted fields, filename fields as their shadows.
func (f Fields) OtherFields() []string {
	out := append([]string(nil), f.Searchable...)
	for _, name := range f.Filename {
		out = append(out, name+storage.SearchableSuffix)
	}
	return out
}
