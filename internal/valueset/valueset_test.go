package valueset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIDAndCulture(t *testing.T) {
	assert.Equal(t, "1076", NodeID("1076|en-US"))
	assert.Equal(t, "en-us", CultureOf("1076|en-US"))
	assert.Equal(t, "1076", NodeID("1076"))
	assert.Equal(t, "", CultureOf("1076"))
	assert.Equal(t, "1076|da-dk", VariantID("1076", "da-DK"))
}

func TestValueSet_IsPublishedIn(t *testing.T) {
	invariant := &ValueSet{ID: "10", Published: true}
	assert.True(t, invariant.IsPublishedIn())

	variant := &ValueSet{ID: "10|da-dk", Published: true, PublishedCultures: []string{"en-US"}}
	assert.False(t, variant.IsPublishedIn())

	variant.PublishedCultures = append(variant.PublishedCultures, "DA-DK")
	assert.True(t, variant.IsPublishedIn())

	variant.Published = false
	assert.False(t, variant.IsPublishedIn())
}

func TestValueSet_Validate(t *testing.T) {
	valid := &ValueSet{ID: "1", Category: CategoryContent, Path: "-1,1"}
	valid.Values.Set("nodeName", "Home")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		vs   *ValueSet
	}{
		{"nil", nil},
		{"empty id", &ValueSet{Category: CategoryContent, Path: "-1,1"}},
		{"bad category", &ValueSet{ID: "1", Category: "blog", Path: "-1,1"}},
		{"missing path", &ValueSet{ID: "1", Category: CategoryMedia}},
		{"reserved field", &ValueSet{ID: "1", Category: CategoryContent, Path: "-1,1",
			Values: Values{{Name: "__path", Values: []any{"x"}}}}},
		{"unsupported type", &ValueSet{ID: "1", Category: CategoryContent, Path: "-1,1",
			Values: Values{{Name: "when", Values: []any{struct{}{}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.vs.Validate())
		})
	}

	member := &ValueSet{ID: "m1", Category: CategoryMember}
	assert.NoError(t, member.Validate(), "members are not part of the content tree")
}

func TestValues_OrderedOperations(t *testing.T) {
	var vs Values
	vs.Set("nodeName", "Home")
	vs.Set("tags", "a")
	vs.Add("tags", "b", "c")
	vs.Set("nodeName", "Start")

	assert.Equal(t, []string{"nodeName", "tags"}, vs.Names())
	assert.Equal(t, "Start", vs.First("nodeName"))
	tags, ok := vs.Get("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, tags)

	clone := vs.Clone()
	clone.Set("nodeName", "Changed")
	assert.Equal(t, "Start", vs.First("nodeName"))

	vs.Remove("nodeName")
	assert.Equal(t, []string{"tags"}, vs.Names())
}

func TestEntityType(t *testing.T) {
	et, err := ParseEntityType("media")
	require.NoError(t, err)
	assert.Equal(t, EntityMedia, et)
	assert.Equal(t, CategoryMedia, et.Category())
	assert.Equal(t, CategoryContent, EntityDocument.Category())
	assert.Equal(t, CategoryMember, EntityMember.Category())

	_, err = ParseEntityType("blog")
	assert.Error(t, err)
}

func TestRecycleBinRoot(t *testing.T) {
	assert.Equal(t, "-20", RecycleBinRoot(CategoryContent))
	assert.Equal(t, "-21", RecycleBinRoot(CategoryMedia))
	assert.Equal(t, "", RecycleBinRoot(CategoryMember))
}

func TestIndexOperation_TargetIDs(t *testing.T) {
	ops := Upsert(&ValueSet{ID: "1"}, &ValueSet{ID: "2"})
	require.Len(t, ops, 2)
	assert.Equal(t, []string{"2"}, ops[1].TargetIDs())
	assert.Equal(t, "upsert", ops[0].Kind.String())

	del := Delete("3", "4")
	assert.Equal(t, []string{"3", "4"}, del.TargetIDs())
	assert.Equal(t, "delete", del.Kind.String())
}
