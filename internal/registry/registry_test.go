package registry

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/logging"
	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

func openMemory(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(context.Background(), Config{
		Descriptors: DefaultDescriptors("", true),
		Logger:      logging.Discard(),
		Metrics:     metrics.New(nil),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestOpen_Defaults(t *testing.T) {
	r := openMemory(t)

	assert.Equal(t, []string{ExternalIndex, InternalIndex, MembersIndex}, r.Names())
	assert.Empty(t, r.Unavailable())
	for _, idx := range r.All() {
		assert.True(t, idx.Available(), idx.Name())
		assert.NotNil(t, idx.Writer)
	}

	ext, err := r.Get(ExternalIndex)
	require.NoError(t, err)
	assert.True(t, ext.Descriptor().Policy.PublishedOnly)
	assert.True(t, ext.Validator.Policy().ExcludeProtected)
}

func TestRegistry_Routing(t *testing.T) {
	r := openMemory(t)

	h, err := r.ForEntityType(valueset.EntityMedia)
	require.NoError(t, err)
	assert.Equal(t, InternalIndex, h.Name())

	h, err = r.ForEntityType(valueset.EntityMember)
	require.NoError(t, err)
	assert.Equal(t, MembersIndex, h.Name())

	_, err = r.ForEntityType(valueset.EntityType("Template"))
	assert.Equal(t, cmserrors.ErrCodeUnknownIndex, cmserrors.GetCode(err))

	var names []string
	for _, idx := range r.ForCategory(valueset.CategoryContent) {
		names = append(names, idx.Name())
	}
	assert.Equal(t, []string{ExternalIndex, InternalIndex}, names)
	require.Len(t, r.ForCategory(valueset.CategoryMember), 1)
}

func TestRegistry_UnknownIndex(t *testing.T) {
	r := openMemory(t)
	_, err := r.Get("Nope")
	assert.Equal(t, cmserrors.ErrCodeUnknownIndex, cmserrors.GetCode(err))
}

func TestOpen_DuplicateAndEmpty(t *testing.T) {
	_, err := Open(context.Background(), Config{Logger: logging.Discard()})
	assert.Equal(t, cmserrors.ErrCodeConfigInvalid, cmserrors.GetCode(err))

	d := DefaultDescriptors("", true)
	_, err = Open(context.Background(), Config{Descriptors: append(d, d[0]), Logger: logging.Discard()})
	assert.Equal(t, cmserrors.ErrCodeConfigInvalid, cmserrors.GetCode(err))
}

func TestOpen_UnavailableStoreDoesNotBlockOthers(t *testing.T) {
	root := t.TempDir()
	// A live process (this one) already holds ExternalIndex.
	marker := storage.LockMarkerPath(root, ExternalIndex)
	require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getpid())), 0644))

	r, err := Open(context.Background(), Config{
		Descriptors: DefaultDescriptors(root, false),
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	defer r.Close()

	unavailable := r.Unavailable()
	require.Len(t, unavailable, 1)
	assert.Equal(t, ExternalIndex, unavailable[0].Name())

	_, err = r.Get(ExternalIndex)
	assert.Equal(t, cmserrors.ErrCodeIndexLocked, cmserrors.GetCode(err))

	idx, err := r.Lookup(ExternalIndex)
	require.NoError(t, err)
	assert.False(t, idx.Available())

	internal, err := r.Get(InternalIndex)
	require.NoError(t, err)
	assert.True(t, internal.Available())
}

func TestRegistry_CloseRemovesMarkers(t *testing.T) {
	root := t.TempDir()
	r, err := Open(context.Background(), Config{
		Descriptors: DefaultDescriptors(root, false),
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	for _, name := range r.Names() {
		info, err := storage.InspectLock(root, name)
		require.NoError(t, err)
		assert.False(t, info.Exists, name)
	}
}
