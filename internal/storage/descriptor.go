// Package storage adapts bleve indexes to the indexing subsystem.
//
// A Handle owns one bleve index. Readers pin the last committed snapshot and
// never block on the writer; at most one Writer per Handle exists at a time.
// On-disk indexes are guarded by a lock marker file whose presence is the
// authoritative "writer active" signal across processes.
package storage

import (
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/cmsindex/internal/validator"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// DefaultAnalyzer is used for dynamic text fields when a descriptor names none.
const DefaultAnalyzer = "standard"

// Descriptor is the immutable configuration of one named index.
type Descriptor struct {
	Name string `yaml:"name"`
	// Root is the storage directory; the index lives at <Root>/<Name>.bleve.
	Root     string `yaml:"root"`
	InMemory bool   `yaml:"in_memory"`
	// Analyzer names the bleve analyzer for text fields.
	Analyzer string `yaml:"analyzer"`
	// FilenameFields get a "<field>_searchable" shadow with - and _ turned into spaces.
	FilenameFields []string `yaml:"filename_fields"`

	Categories []valueset.Category `yaml:"categories"`
	Policy     validator.Policy    `yaml:"-"`
}

// IndexPath is the bleve directory of the descriptor.
func (d Descriptor) IndexPath() string {
	return filepath.Join(d.Root, d.Name+".bleve")
}

// AcceptsCategory reports whether the index receives value sets of category c.
func (d Descriptor) AcceptsCategory(c valueset.Category) bool {
	if len(d.Categories) == 0 {
		return true
	}
	for _, accepted := range d.Categories {
		if accepted == c {
			return true
		}
	}
	return false
}

func (d Descriptor) analyzer() string {
	if d.Analyzer == "" {
		return DefaultAnalyzer
	}
	return d.Analyzer
}

// Options tune Open.
type Options struct {
	// ForceUnlock clears any lock marker, live owner or not. Startup recovery only.
	ForceUnlock bool
	Logger      *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
