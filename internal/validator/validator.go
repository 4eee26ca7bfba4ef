// Package validator decides, per index, whether a value set may be indexed.
//
// A Validator is pure: it holds only its immutable Policy and is safe for
// concurrent use without locking.
package validator

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// RuleSet selects the category-specific rules a policy applies.
type RuleSet int

const (
	// RulesContent applies tree rules (recycle bin, publishing, protection, parent).
	RulesContent RuleSet = iota
	// RulesMember applies only the scope rules; members live outside the content tree.
	RulesMember
)

// Policy is the validation configuration of one index.
type Policy struct {
	RuleSet RuleSet

	// PublishedOnly rejects items (or culture variants) that are not published.
	PublishedOnly bool
	// ExcludeProtected rejects items below a node with a public-access entry.
	ExcludeProtected bool
	// ParentID restricts the index to items at or below this node.
	ParentID string

	// IncludeItemTypes / ExcludeItemTypes are doublestar patterns over item type aliases.
	IncludeItemTypes []string
	ExcludeItemTypes []string

	// IncludeFields / ExcludeFields are doublestar patterns over field names.
	// Non-matching fields are stripped, they never reject the item.
	IncludeFields []string
	ExcludeFields []string

	// Categories lists the categories the index accepts; empty accepts all.
	Categories []valueset.Category
}

// Status is the outcome of validating a value set.
type Status int

const (
	// Valid means the value set is indexed unchanged.
	Valid Status = iota
	// Filtered means the value set is indexed with some fields stripped.
	Filtered
	// Failed means the value set must not be in the index.
	Failed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Filtered:
		return "filtered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reason names the rule that rejected a value set.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonCategory    Reason = "category"
	ReasonRecycleBin  Reason = "recycle_bin"
	ReasonUnpublished Reason = "unpublished"
	ReasonProtected   Reason = "protected"
	ReasonParent      Reason = "outside_parent"
	ReasonItemType    Reason = "item_type"
)

// Result is the outcome of Validate.
type Result struct {
	Status Status
	Reason Reason
	// ValueSet is the value set to index: the input itself when Valid, a
	// filtered copy when Filtered, nil when Failed.
	ValueSet *valueset.ValueSet
}

// Validator applies a Policy.
type Validator struct {
	policy Policy
}

// New creates a Validator for policy.
func New(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Policy returns the validator's policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Indexable reports whether an item with this tree state may be indexed.
// Rules apply in order and stop at the first failure.
func (v *Validator) Indexable(path valueset.Path, category valueset.Category, isPublished, isProtected bool) bool {
	return v.treeRules(path, category, isPublished, isProtected) == ReasonNone
}

// Validate applies every rule to vs. Invalid value sets are never errors.
func (v *Validator) Validate(vs *valueset.ValueSet) Result {
	if !v.acceptsCategory(vs.Category) {
		return Result{Status: Failed, Reason: ReasonCategory}
	}
	if r := v.treeRules(vs.Path, vs.Category, vs.IsPublishedIn(), vs.Protected); r != ReasonNone {
		return Result{Status: Failed, Reason: r}
	}
	if !v.itemTypeAllowed(vs.ItemType) {
		return Result{Status: Failed, Reason: ReasonItemType}
	}

	if len(v.policy.IncludeFields) == 0 && len(v.policy.ExcludeFields) == 0 {
		return Result{Status: Valid, ValueSet: vs}
	}

	filtered := vs.Clone()
	filtered.Values = filtered.Values[:0]
	for _, f := range vs.Values {
		if v.fieldAllowed(f.Name) {
			filtered.Values = append(filtered.Values, f)
		}
	}
	if len(filtered.Values) == len(vs.Values) {
		return Result{Status: Valid, ValueSet: vs}
	}
	return Result{Status: Filtered, ValueSet: filtered}
}

func (v *Validator) treeRules(path valueset.Path, category valueset.Category, isPublished, isProtected bool) Reason {
	if v.policy.RuleSet == RulesMember || category == valueset.CategoryMember {
		return ReasonNone
	}

	if bin := valueset.RecycleBinRoot(category); bin != "" && path.Contains(bin) {
		return ReasonRecycleBin
	}
	if v.policy.PublishedOnly && !isPublished {
		return ReasonUnpublished
	}
	if v.policy.ExcludeProtected && isProtected {
		return ReasonProtected
	}
	if v.policy.ParentID != "" && !path.Contains(v.policy.ParentID) {
		return ReasonParent
	}
	return ReasonNone
}

func (v *Validator) acceptsCategory(c valueset.Category) bool {
	if len(v.policy.Categories) == 0 {
		return true
	}
	for _, accepted := range v.policy.Categories {
		if accepted == c {
			return true
		}
	}
	return false
}

// AcceptsCategory reports whether the index takes value sets of category c.
func (v *Validator) AcceptsCategory(c valueset.Category) bool {
	return v.acceptsCategory(c)
}

func (v *Validator) itemTypeAllowed(itemType string) bool {
	return allowed(strings.ToLower(itemType), v.policy.IncludeItemTypes, v.policy.ExcludeItemTypes, true)
}

func (v *Validator) fieldAllowed(name string) bool {
	return allowed(name, v.policy.IncludeFields, v.policy.ExcludeFields, false)
}

// allowed applies include then exclude patterns. Exclude wins.
func allowed(name string, include, exclude []string, fold bool) bool {
	if len(include) > 0 && !matchAny(name, include, fold) {
		return false
	}
	return !matchAny(name, exclude, fold)
}

func matchAny(name string, patterns []string, fold bool) bool {
	for _, p := range patterns {
		if fold {
			p = strings.ToLower(p)
		}
		// Malformed patterns are rejected by config validation.
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// ValidatePatterns reports the first malformed doublestar pattern.
func ValidatePatterns(patterns ...[]string) error {
	for _, list := range patterns {
		for _, p := range list {
			if !doublestar.ValidatePattern(p) {
				return &PatternError{Pattern: p}
			}
		}
	}
	return nil
}

// PatternError reports a malformed include/exclude pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid pattern " + `"` + e.Pattern + `"`
}
