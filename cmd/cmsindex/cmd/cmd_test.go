package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/query"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/pkg/version"
)

// testEnv isolates the CLI from the user's config and log directory.
func testEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"CMSINDEX_STORAGE_ROOT", "CMSINDEX_MEMORY", "CMSINDEX_FORCE_UNLOCK",
		"CMSINDEX_CULTURES", "CMSINDEX_PAGE_SIZE", "CMSINDEX_CONTENT_TREE",
		"CMSINDEX_QUEUE_SIZE", "CMSINDEX_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("CMSINDEX_LOG_FILE", filepath.Join(t.TempDir(), "cmsindex.log"))
	return t.TempDir()
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func indexRoot(dir string) string {
	return filepath.Join(dir, ".cmsindex", "indexes")
}

const publishBatch = `{
  "events": [
    {"kind": "published", "category": "content", "items": [
      {"id": "1050", "path": "-1,1050", "itemType": "page", "published": true,
       "values": [{"name": "nodeName", "values": ["Home Page"]}]},
      {"id": "1051", "path": "-1,1050,1051", "itemType": "page", "published": true,
       "values": [{"name": "nodeName", "values": ["Home Office"]}, {"name": "sortOrder", "values": [3]}]},
      {"id": "1060", "path": "-1,1060", "itemType": "page", "published": true,
       "values": [{"name": "nodeName", "values": ["Contact"]}]}
    ]}
  ]
}`

func writeBatch(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func searchJSON(t *testing.T, dir string, args ...string) query.Results {
	t.Helper()
	out, err := run(t, dir, append([]string{"search", "--format", "json"}, args...)...)
	require.NoError(t, err, out)
	var res query.Results
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

func hitIDs(res query.Results) []string {
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}

// =============================================================================
// version
// =============================================================================

func TestVersionCmd(t *testing.T) {
	// Flags persist on a cobra command, so each invocation gets a fresh one.
	execute := func(args ...string) []byte {
		t.Helper()
		cmd := newVersionCmd()
		buf := &bytes.Buffer{}
		cmd.SetOut(buf)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return buf.Bytes()
	}

	assert.Equal(t, version.Short(), strings.TrimSpace(string(execute("--short"))))

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(execute("--json"), &info))
	assert.Equal(t, version.GetInfo().Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	assert.Contains(t, string(execute()), "cmsindex "+version.Short())
}

// =============================================================================
// apply + search
// =============================================================================

func TestApplyThenSearch_PersistsAcrossInvocations(t *testing.T) {
	// Given: a published batch applied in one invocation
	dir := testEnv(t)
	out, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err, out)
	assert.Contains(t, out, "InternalIndex: 3 upserted")
	assert.Contains(t, out, "ExternalIndex: 3 upserted")

	// Then: the lock markers were released on exit
	assert.NoFileExists(t, storage.LockMarkerPath(indexRoot(dir), "InternalIndex"))

	// When: searching in a second invocation
	res := searchJSON(t, dir, "home")

	// Then: both "Home" items are found, the contact page is not
	assert.Equal(t, "InternalIndex", res.Index)
	assert.ElementsMatch(t, []string{"1050", "1051"}, hitIDs(res))
}

func TestApply_DeleteCascadesToDescendants(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err)

	del := `{"events": [{"kind": "deleted", "category": "content", "ids": ["1050"]}]}`
	out, err := run(t, dir, "apply", "--format", "json", writeBatch(t, dir, "delete.json", del))
	require.NoError(t, err, out)

	var results []applyResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Receipts["InternalIndex"].Deleted)

	assert.Empty(t, searchJSON(t, dir, "home").Hits)
	assert.Equal(t, []string{"1060"}, hitIDs(searchJSON(t, dir, "contact")))
}

func TestSearch_StartNodeScope(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err)

	res := searchJSON(t, dir, "home", "--start-node", "1051")

	assert.Equal(t, []string{"1051"}, hitIDs(res))
}

func TestSearch_RootsRestrictWithoutIgnore(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err)

	assert.Empty(t, searchJSON(t, dir, "home", "--roots", "1060").Hits)
	assert.Len(t, searchJSON(t, dir, "home", "--roots", "1060", "--ignore-start-nodes").Hits, 2)
}

func TestSearch_TextOutput(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err)

	out, err := run(t, dir, "search", "contact", "--show-query")

	require.NoError(t, err)
	assert.Contains(t, out, "query:")
	assert.Contains(t, out, "1 of 1 results in InternalIndex")
	assert.Contains(t, out, "Contact")

	out, err = run(t, dir, "search", "nothing-matches-this")
	require.NoError(t, err)
	assert.Contains(t, out, "No results")
}

func TestSearch_UnknownType(t *testing.T) {
	dir := testEnv(t)

	_, err := run(t, dir, "search", "x", "--type", "widget")

	require.Error(t, err)
}

func TestApply_Operations(t *testing.T) {
	dir := testEnv(t)
	batch := `{"operations": [
	  {"index": "MembersIndex", "upsert": [
	    {"id": "2001", "category": "member", "itemType": "member",
	     "values": [{"name": "nodeName", "values": ["Alice"]}, {"name": "email", "values": ["alice@example.com"]}]}]}
	]}`

	out, err := run(t, dir, "apply", writeBatch(t, dir, "ops.json", batch))
	require.NoError(t, err, out)

	res := searchJSON(t, dir, "alice", "--type", "member")
	assert.Equal(t, "MembersIndex", res.Index)
	assert.Equal(t, []string{"2001"}, hitIDs(res))
}

func TestApply_UnknownIndexFails(t *testing.T) {
	dir := testEnv(t)
	batch := `{"operations": [{"index": "Nope", "delete": ["1"]}]}`

	out, err := run(t, dir, "apply", "--retries", "0", writeBatch(t, dir, "ops.json", batch))

	require.Error(t, err)
	assert.Equal(t, cmserrors.ErrCodeWriteFailed, cmserrors.GetCode(err))
	assert.Contains(t, out, "Nope")
}

func TestApply_MalformedBatch(t *testing.T) {
	dir := testEnv(t)

	_, err := run(t, dir, "apply", writeBatch(t, dir, "bad.json", "{not json"))

	require.Error(t, err)
	assert.Equal(t, cmserrors.ErrCodeInvalidInput, cmserrors.GetCode(err))
}

func TestApply_Stdin(t *testing.T) {
	dir := testEnv(t)
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(publishBatch))
	cmd.SetArgs([]string{"--dir", dir, "apply", "-"})

	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "InternalIndex: 3 upserted")
}

// =============================================================================
// health, stats, unlock
// =============================================================================

func TestHealth_AllHealthy(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err)

	out, err := run(t, dir, "health")

	require.NoError(t, err, out)
	assert.Contains(t, out, "InternalIndex: 3 documents")
	assert.Contains(t, out, "MembersIndex: 0 documents")
}

func TestHealth_JSONIncludesSystemChecks(t *testing.T) {
	dir := testEnv(t)

	out, err := run(t, dir, "health", "--format", "json")
	require.NoError(t, err, out)

	var rep healthReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.NotEqual(t, "failed", rep.Status)
	assert.Len(t, rep.Indexes, 3)
	names := make([]string, 0, len(rep.Checks))
	for _, c := range rep.Checks {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "disk_space")
	assert.Contains(t, names, "write_permissions")
	assert.Contains(t, names, "lock_InternalIndex")
}

func TestHealth_LockedIndexIsDegraded(t *testing.T) {
	// Given: ExternalIndex held by a live process (this one)
	dir := testEnv(t)
	root := indexRoot(dir)
	require.NoError(t, os.MkdirAll(root, 0755))
	marker := storage.LockMarkerPath(root, "ExternalIndex")
	require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getpid())), 0644))

	// When: checking health
	out, err := run(t, dir, "health")

	// Then: the command fails and names the locked index, others stay healthy
	require.Error(t, err)
	assert.Contains(t, out, "ExternalIndex")
	assert.Contains(t, out, "InternalIndex: 0 documents")
	assert.FileExists(t, marker, "a live owner's marker is never removed")
}

func TestStats_JSON(t *testing.T) {
	dir := testEnv(t)
	_, err := run(t, dir, "apply", writeBatch(t, dir, "batch.json", publishBatch))
	require.NoError(t, err)

	out, err := run(t, dir, "stats", "--format", "json", "--metrics")
	require.NoError(t, err, out)

	var rep statsReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.Len(t, rep.Indexes, 3)
	byName := map[string]indexStats{}
	for _, st := range rep.Indexes {
		byName[st.Name] = st
	}
	assert.Equal(t, 3, byName["InternalIndex"].Documents)
	assert.Greater(t, byName["InternalIndex"].DiskBytes, uint64(0))
	assert.Equal(t, "3", rep.Metrics["cmsindex_documents{index=InternalIndex}"])
}

func TestUnlock(t *testing.T) {
	t.Run("not locked", func(t *testing.T) {
		dir := testEnv(t)
		out, err := run(t, dir, "unlock", "InternalIndex")
		require.NoError(t, err)
		assert.Contains(t, out, "not locked")
	})

	t.Run("stale marker cleared", func(t *testing.T) {
		dir := testEnv(t)
		root := indexRoot(dir)
		require.NoError(t, os.MkdirAll(root, 0755))
		marker := storage.LockMarkerPath(root, "InternalIndex")
		require.NoError(t, os.WriteFile(marker, []byte("999999999"), 0644))

		out, err := run(t, dir, "unlock", "InternalIndex")

		require.NoError(t, err, out)
		assert.Contains(t, out, "cleared stale marker")
		assert.NoFileExists(t, marker)
	})

	t.Run("live marker needs force", func(t *testing.T) {
		dir := testEnv(t)
		root := indexRoot(dir)
		require.NoError(t, os.MkdirAll(root, 0755))
		marker := storage.LockMarkerPath(root, "InternalIndex")
		require.NoError(t, os.WriteFile(marker, []byte(strconv.Itoa(os.Getpid())), 0644))

		_, err := run(t, dir, "unlock", "InternalIndex")
		require.Error(t, err)
		assert.Equal(t, cmserrors.ErrCodeIndexLocked, cmserrors.GetCode(err))
		assert.FileExists(t, marker)

		out, err := run(t, dir, "unlock", "--force", "InternalIndex")
		require.NoError(t, err, out)
		assert.NoFileExists(t, marker)
	})

	t.Run("unknown index", func(t *testing.T) {
		dir := testEnv(t)
		_, err := run(t, dir, "unlock", "Nope")
		require.Error(t, err)
		assert.Equal(t, cmserrors.ErrCodeUnknownIndex, cmserrors.GetCode(err))
	})
}

// =============================================================================
// config
// =============================================================================

func TestConfigInitAndShow(t *testing.T) {
	dir := testEnv(t)

	out, err := run(t, dir, "config", "init")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(dir, "cmsindex.yaml"))

	_, err = run(t, dir, "config", "init")
	require.Error(t, err, "init refuses to overwrite")

	out, err = run(t, dir, "config", "init", "--force")
	require.NoError(t, err, out)
	assert.Contains(t, out, "backed up")

	out, err = run(t, dir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "page_size: 20")
	assert.Contains(t, out, indexRoot(dir))
}

func TestProfilingFlags(t *testing.T) {
	dir := testEnv(t)
	cpu := filepath.Join(t.TempDir(), "cpu.prof")

	_, err := run(t, dir, "--profile-cpu", cpu, "health")

	require.NoError(t, err)
	assert.FileExists(t, cpu)
}
