package storage

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// SearchableSuffix names the shadow field of a filename-style field.
const SearchableSuffix = "_searchable"

// Analyzers accepted in a Descriptor.
var knownAnalyzers = map[string]struct{}{
	standard.Name:   {},
	simple.Name:     {},
	keyword.Name:    {},
	en.AnalyzerName: {},
}

var systemKeywordFields = []string{
	valueset.FieldID,
	valueset.FieldNodeID,
	valueset.FieldCategory,
	valueset.FieldItemType,
	valueset.FieldPath,
	valueset.FieldPathIDs,
	valueset.FieldKey,
	valueset.FieldPublished,
	valueset.FieldCulture,
}

// ValidateAnalyzer reports whether name is a supported analyzer.
func ValidateAnalyzer(name string) error {
	if name == "" {
		return nil
	}
	if _, ok := knownAnalyzers[name]; !ok {
		return fmt.Errorf("unknown analyzer %q", name)
	}
	return nil
}

// buildMapping creates the index mapping: system fields are keywords,
// everything else is mapped dynamically with the descriptor's analyzer.
func buildMapping(d Descriptor) (*mapping.IndexMappingImpl, error) {
	if err := ValidateAnalyzer(d.Analyzer); err != nil {
		return nil, err
	}

	kw := bleve.NewKeywordFieldMapping()
	kw.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	for _, name := range systemKeywordFields {
		doc.AddFieldMappingsAt(name, kw)
	}

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = d.analyzer()
	m.StoreDynamic = true
	m.IndexDynamic = true

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid index mapping: %w", err)
	}
	return m, nil
}

// documentFor flattens a value set into the bleve document stored under vs.ID.
func documentFor(vs *valueset.ValueSet, d Descriptor) map[string]any {
	doc := make(map[string]any, len(vs.Values)+len(systemKeywordFields))

	for _, f := range vs.Values {
		doc[f.Name] = fieldValue(f.Values)
	}
	for _, name := range d.FilenameFields {
		vals, ok := vs.Values.Get(name)
		if !ok {
			continue
		}
		shadow := make([]any, 0, len(vals))
		for _, v := range vals {
			if s, ok := v.(string); ok {
				shadow = append(shadow, SearchableText(s))
			}
		}
		if len(shadow) > 0 {
			doc[name+SearchableSuffix] = fieldValue(shadow)
		}
	}

	segments := vs.Path.Segments()
	pathIDs := make([]any, len(segments))
	for i, s := range segments {
		pathIDs[i] = s
	}

	published := "n"
	if vs.IsPublishedIn() {
		published = "y"
	}

	doc[valueset.FieldID] = vs.ID
	doc[valueset.FieldNodeID] = vs.NodeID()
	doc[valueset.FieldCategory] = string(vs.Category)
	doc[valueset.FieldItemType] = vs.ItemType
	doc[valueset.FieldPath] = vs.Path.String()
	doc[valueset.FieldPathIDs] = pathIDs
	doc[valueset.FieldPublished] = published
	if vs.Key != "" {
		doc[valueset.FieldKey] = strings.ToLower(vs.Key)
	}
	if c := vs.Culture(); c != "" {
		doc[valueset.FieldCulture] = c
	}
	return doc
}

// SearchableText turns filename-style text into separate words.
func SearchableText(s string) string {
	return strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(s)
}

func fieldValue(vals []any) any {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}
