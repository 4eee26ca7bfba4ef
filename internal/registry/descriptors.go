package registry

import (
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/validator"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// Default index names.
const (
	InternalIndex = "InternalIndex"
	ExternalIndex = "ExternalIndex"
	MembersIndex  = "MembersIndex"
)

// DefaultDescriptors returns the three standard indexes rooted at root.
func DefaultDescriptors(root string, inMemory bool) []storage.Descriptor {
	contentAndMedia := []valueset.Category{valueset.CategoryContent, valueset.CategoryMedia}
	members := []valueset.Category{valueset.CategoryMember}
	filenames := []string{"umbracoFile"}

	return []storage.Descriptor{
		{
			Name:           InternalIndex,
			Root:           root,
			InMemory:       inMemory,
			FilenameFields: filenames,
			Categories:     contentAndMedia,
			Policy: validator.Policy{
				RuleSet:    validator.RulesContent,
				Categories: contentAndMedia,
			},
		},
		{
			Name:           ExternalIndex,
			Root:           root,
			InMemory:       inMemory,
			FilenameFields: filenames,
			Categories:     contentAndMedia,
			Policy: validator.Policy{
				RuleSet:          validator.RulesContent,
				PublishedOnly:    true,
				ExcludeProtected: true,
				Categories:       contentAndMedia,
			},
		},
		{
			Name:       MembersIndex,
			Root:       root,
			InMemory:   inMemory,
			Categories: members,
			Policy: validator.Policy{
				RuleSet:    validator.RulesMember,
				Categories: members,
			},
		},
	}
}

// DefaultSearchTargets maps entity types to the index the admin search uses.
func DefaultSearchTargets() map[valueset.EntityType]string {
	return map[valueset.EntityType]string{
		valueset.EntityDocument: InternalIndex,
		valueset.EntityMedia:    InternalIndex,
		valueset.EntityMember:   MembersIndex,
	}
}
