package events

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/cmsindex/internal/contenttree"
	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/logging"
	"github.com/Aman-CERP/cmsindex/internal/registry"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

type purger struct{ purged int }

func (p *purger) PurgePaths() { p.purged++ }

type env struct {
	reg   *registry.Registry
	tree  *contenttree.Store
	cache *purger
	d     *Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg, err := registry.Open(context.Background(), registry.Config{
		Descriptors: registry.DefaultDescriptors("", true),
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	tree, err := contenttree.Open("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = reg.Close()
		_ = tree.Close()
	})
	cache := &purger{}
	return &env{reg: reg, tree: tree, cache: cache, d: NewDispatcher(reg, tree, cache, logging.Discard())}
}

func (e *env) ids(t *testing.T, index string) []string {
	t.Helper()
	idx, err := e.reg.Get(index)
	require.NoError(t, err)
	r, err := idx.Handle.Reader()
	require.NoError(t, err)
	defer r.Close()
	n, err := r.DocCount()
	require.NoError(t, err)
	if n == 0 {
		return nil
	}
	ids, err := r.IDsWithPathSegment(context.Background(), valueset.RootID)
	require.NoError(t, err)
	return ids
}

func page(id string, path valueset.Path, published bool) Item {
	it := Item{ID: id, ItemType: "page", Path: path, Published: published}
	it.Values.Set("nodeName", "Page "+id)
	return it
}

func (e *env) handle(t *testing.T, ev Event) {
	t.Helper()
	_, err := e.d.Handle(context.Background(), ev)
	require.NoError(t, err)
}

func TestHandle_PublishedAndUnpublished(t *testing.T) {
	e := newEnv(t)

	receipts, err := e.d.Handle(context.Background(), Event{
		Kind:     Published,
		Category: valueset.CategoryContent,
		Items:    []Item{page("10", "-1,10", true), page("11", "-1,10,11", false)},
	})
	require.NoError(t, err)
	assert.Len(t, receipts, 2, "content goes to the internal and external indexes")
	assert.Equal(t, 1, receipts[registry.ExternalIndex].Skipped)

	assert.ElementsMatch(t, []string{"10", "11"}, e.ids(t, registry.InternalIndex))
	assert.ElementsMatch(t, []string{"10"}, e.ids(t, registry.ExternalIndex))
	assert.Empty(t, e.ids(t, registry.MembersIndex))

	e.handle(t, Event{Kind: Unpublished, Category: valueset.CategoryContent,
		Items: []Item{page("10", "-1,10", false)}})
	assert.ElementsMatch(t, []string{"10", "11"}, e.ids(t, registry.InternalIndex))
	assert.Empty(t, e.ids(t, registry.ExternalIndex))
}

func TestHandle_ProtectedContentStaysOutOfExternal(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.tree.SetPublicAccess(context.Background(), "10"))

	e.handle(t, Event{Kind: Published, Category: valueset.CategoryContent,
		Items: []Item{page("10", "-1,10", true), page("11", "-1,10,11", true), page("20", "-1,20", true)}})

	assert.ElementsMatch(t, []string{"10", "11", "20"}, e.ids(t, registry.InternalIndex))
	assert.ElementsMatch(t, []string{"20"}, e.ids(t, registry.ExternalIndex))
}

func TestHandle_TrashedRemovesSubtree(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Event{Kind: Published, Category: valueset.CategoryContent,
		Items: []Item{page("10", "-1,10", true), page("11", "-1,10,11", true), page("20", "-1,20", true)}})

	e.handle(t, Event{Kind: Trashed, Category: valueset.CategoryContent,
		Items: []Item{page("10", "-1,-20,10", false)}})

	assert.ElementsMatch(t, []string{"20"}, e.ids(t, registry.InternalIndex))
	assert.ElementsMatch(t, []string{"20"}, e.ids(t, registry.ExternalIndex))

	n, ok, err := e.tree.Get(context.Background(), "10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, n.Trashed())
}

func TestHandle_DeletedAndEmptiedRecycleBin(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Event{Kind: Saved, Category: valueset.CategoryMedia,
		Items: []Item{page("5", "-1,5", true), page("6", "-1,5,6", true), page("7", "-1,7", true)}})

	e.handle(t, Event{Kind: Deleted, Category: valueset.CategoryMedia, IDs: []string{"5"}})
	assert.ElementsMatch(t, []string{"7"}, e.ids(t, registry.InternalIndex))

	e.handle(t, Event{Kind: EmptiedRecycleBin, Category: valueset.CategoryMedia, IDs: []string{"7"}})
	assert.Empty(t, e.ids(t, registry.InternalIndex))

	_, ok, err := e.tree.Get(context.Background(), "6")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHandle_VariantItems(t *testing.T) {
	e := newEnv(t)

	it := page("1", "-1,1", true)
	it.Cultures = []string{"en-US", "da-DK"}
	it.PublishedCultures = []string{"en-US"}
	it.CultureValues = map[string]valueset.Values{
		"en-US": {{Name: "nodeName", Values: []any{"Summer"}}},
		"da-DK": {{Name: "nodeName", Values: []any{"Sommer"}}},
	}
	e.handle(t, Event{Kind: Published, Category: valueset.CategoryContent, Items: []Item{it}})

	assert.ElementsMatch(t, []string{"1", "1|en-us", "1|da-dk"}, e.ids(t, registry.InternalIndex))
	assert.ElementsMatch(t, []string{"1", "1|en-us"}, e.ids(t, registry.ExternalIndex))

	idx, err := e.reg.Get(registry.InternalIndex)
	require.NoError(t, err)
	r, err := idx.Handle.Reader()
	require.NoError(t, err)
	defer r.Close()
	doc, err := r.Document("1|da-dk")
	require.NoError(t, err)
	assert.Equal(t, []any{"Sommer"}, doc["nodeName"])
	assert.Equal(t, []any{"Summer"}, doc["nodeName_en-us"])
}

func TestHandle_Members(t *testing.T) {
	e := newEnv(t)

	m := Item{ID: "500", ItemType: "member"}
	m.Values.Set("nodeName", "Jane")
	receipts, err := e.d.Handle(context.Background(), Event{Kind: MemberSaved, Category: valueset.CategoryMember, Items: []Item{m}})
	require.NoError(t, err)
	assert.Len(t, receipts, 1)
	assert.Contains(t, receipts, registry.MembersIndex)

	idx, err := e.reg.Get(registry.MembersIndex)
	require.NoError(t, err)
	r, err := idx.Handle.Reader()
	require.NoError(t, err)
	n, err := r.DocCount()
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, uint64(1), n)

	e.handle(t, Event{Kind: MemberDeleted, Category: valueset.CategoryMember, IDs: []string{"500"}})
	r, err = idx.Handle.Reader()
	require.NoError(t, err)
	n, err = r.DocCount()
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, uint64(0), n)
}

func TestHandle_MovedPurgesPathCache(t *testing.T) {
	e := newEnv(t)
	e.handle(t, Event{Kind: Published, Category: valueset.CategoryContent,
		Items: []Item{page("10", "-1,10", true), page("20", "-1,20", true)}})

	e.handle(t, Event{Kind: Moved, Category: valueset.CategoryContent,
		Items: []Item{page("20", "-1,10,20", true)}})

	assert.Equal(t, 1, e.cache.purged)
	p, ok, err := e.tree.Path(context.Background(), "20")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, valueset.Path("-1,10,20"), p)
}

func TestHandle_InvalidEvent(t *testing.T) {
	e := newEnv(t)

	_, err := e.d.Handle(context.Background(), Event{Kind: MemberSaved, Category: valueset.CategoryContent})
	assert.Equal(t, cmserrors.ErrCodeInvalidInput, cmserrors.GetCode(err))

	_, err = e.d.Handle(context.Background(), Event{Kind: "renamed", Category: valueset.CategoryContent})
	assert.Error(t, err)
}

func TestHandle_UnavailableIndexReportedOthersCommit(t *testing.T) {
	root := t.TempDir()
	marker := storage.LockMarkerPath(root, registry.ExternalIndex)
	require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getpid())), 0644))

	reg, err := registry.Open(context.Background(), registry.Config{
		Descriptors: registry.DefaultDescriptors(root, false),
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	defer reg.Close()

	d := NewDispatcher(reg, nil, nil, logging.Discard())
	receipts, err := d.Handle(context.Background(), Event{Kind: Published, Category: valueset.CategoryContent,
		Items: []Item{page("10", "-1,10", true)}})

	require.Error(t, err)
	assert.Equal(t, cmserrors.ErrCodeIndexLocked, cmserrors.GetCode(err))
	assert.Contains(t, receipts, registry.InternalIndex)
	assert.NotContains(t, receipts, registry.ExternalIndex)
}

func TestItem_ValueSets(t *testing.T) {
	it := page("1", "-1,1", true)
	it.Cultures = []string{"en-US"}
	it.CultureValues = map[string]valueset.Values{"en-US": {{Name: "title", Values: []any{"Hello"}}}}

	sets := it.ValueSets(valueset.CategoryContent, true)
	require.Len(t, sets, 2)
	assert.Equal(t, "1", sets[0].ID)
	assert.True(t, sets[0].Protected)
	assert.Equal(t, "Hello", sets[0].Values.First("title_en-us"))
	assert.Equal(t, "1|en-us", sets[1].ID)
	assert.Equal(t, "Hello", sets[1].Values.First("title"))
}
