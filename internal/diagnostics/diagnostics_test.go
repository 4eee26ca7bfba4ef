package diagnostics

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/cmsindex/internal/logging"
	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/registry"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

func openHandle(t *testing.T, d storage.Descriptor) *storage.Handle {
	t.Helper()
	h, err := storage.Open(context.Background(), d, storage.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func index(t *testing.T, h *storage.Handle, ids ...string) {
	t.Helper()
	err := h.WithWriter(context.Background(), func(w *storage.Writer) error {
		b := w.NewBatch()
		for _, id := range ids {
			vs := &valueset.ValueSet{ID: id, Category: valueset.CategoryContent, Path: valueset.JoinPath("-1", id)}
			vs.Values.Set("nodeName", "Node "+id)
			vs.Values.Set("bodyText", "text")
			if err := b.Index(vs); err != nil {
				return err
			}
		}
		_, err := w.Commit(context.Background(), b)
		return err
	})
	require.NoError(t, err)
}

func TestCounts(t *testing.T) {
	h := openHandle(t, storage.Descriptor{Name: "InternalIndex", InMemory: true})

	n, err := DocumentCount(h)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	index(t, h, "1", "2")

	n, err = DocumentCount(h)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fields, err := FieldCount(h)
	require.NoError(t, err)
	// nodeName, bodyText and the system fields.
	assert.GreaterOrEqual(t, fields, 2)
}

func TestIsHealthy(t *testing.T) {
	h := openHandle(t, storage.Descriptor{Name: "InternalIndex", InMemory: true})
	assert.NoError(t, IsHealthy(h))

	var degraded *Degraded
	require.ErrorAs(t, IsHealthy(nil), &degraded)

	h.MarkUnavailable("disk gone")
	require.ErrorAs(t, IsHealthy(h), &degraded)
	assert.Equal(t, "disk gone", degraded.Reason)
}

func TestIsHealthy_ClosedStoreIsDegradedNotError(t *testing.T) {
	h := openHandle(t, storage.Descriptor{Name: "InternalIndex", InMemory: true})
	require.NoError(t, h.Close())

	var degraded *Degraded
	require.ErrorAs(t, IsHealthy(h), &degraded)
	assert.Equal(t, "store closed", degraded.Reason)
}

func TestIsHealthy_MissingLockMarker(t *testing.T) {
	h := openHandle(t, storage.Descriptor{Name: "InternalIndex", Root: t.TempDir()})
	require.NoError(t, os.Remove(h.LockMarker()))

	var degraded *Degraded
	require.ErrorAs(t, IsHealthy(h), &degraded)
	assert.Equal(t, "lock marker missing", degraded.Reason)
}

func TestReport(t *testing.T) {
	root := t.TempDir()
	marker := storage.LockMarkerPath(root, registry.MembersIndex)
	require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getpid())), 0644))

	m := metrics.New(nil)
	reg, err := registry.Open(context.Background(), registry.Config{
		Descriptors: registry.DefaultDescriptors(root, false),
		Logger:      logging.Discard(),
		Metrics:     m,
	})
	require.NoError(t, err)
	defer reg.Close()

	internal, err := reg.Get(registry.InternalIndex)
	require.NoError(t, err)
	index(t, internal.Handle, "1", "2", "3")

	reports, err := Report(context.Background(), reg, m)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	byName := map[string]IndexReport{}
	for _, r := range reports {
		byName[r.Name] = r
	}

	assert.True(t, byName[registry.InternalIndex].Healthy)
	assert.Equal(t, 3, byName[registry.InternalIndex].Documents)
	assert.NotNil(t, byName[registry.InternalIndex].Writer)

	members := byName[registry.MembersIndex]
	assert.False(t, members.Available)
	assert.False(t, members.Healthy)
	assert.NotEmpty(t, members.Reason)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Documents.WithLabelValues(registry.InternalIndex)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Available.WithLabelValues(registry.MembersIndex)))
}

func TestMonitor_MarksHandleUnavailable(t *testing.T) {
	h := openHandle(t, storage.Descriptor{Name: "InternalIndex", Root: t.TempDir()})

	mon, err := NewMonitor(logging.Discard())
	require.NoError(t, err)
	defer mon.Close()
	require.NoError(t, mon.Watch(h))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mon.Run(ctx) }()

	require.NoError(t, os.Remove(h.LockMarker()))

	require.Eventually(t, func() bool {
		return h.Unavailable() != ""
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, h.Unavailable(), "write.lock")
}

func TestMonitor_IgnoresInMemoryAndClosed(t *testing.T) {
	mon, err := NewMonitor(logging.Discard())
	require.NoError(t, err)
	defer mon.Close()

	mem := openHandle(t, storage.Descriptor{Name: "Mem", InMemory: true})
	require.NoError(t, mon.Watch(mem))

	h := openHandle(t, storage.Descriptor{Name: "InternalIndex", Root: t.TempDir()})
	require.NoError(t, mon.Watch(h))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mon.Run(ctx) }()

	require.NoError(t, h.Close())
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.Unavailable(), "a graceful close is not a failure")
}
