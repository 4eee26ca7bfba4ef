package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	v := Short()
	if v == "dev" {
		return
	}
	semver := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(v), "got %s", v)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	s := String()
	info := GetInfo()

	assert.Contains(t, s, "cmsindex")
	assert.Contains(t, s, info.Version)
	assert.Contains(t, s, "commit: "+info.Commit)
	assert.Contains(t, s, runtime.Version())
}

func TestGetInfo_JSON(t *testing.T) {
	info := GetInfo()
	data, err := json.Marshal(info)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, info.Version, decoded["version"])
	assert.Equal(t, runtime.GOOS, decoded["os"])
	assert.Equal(t, runtime.GOARCH, decoded["arch"])
	assert.Contains(t, decoded, "go_version")
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	t.Run("unset ldflags take the vcs stamp", func(t *testing.T) {
		info := BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"}
		fillFromBuildInfo(&info, bi)

		assert.Equal(t, "1.4.0", info.Version)
		assert.Equal(t, "0123456789ab", info.Commit)
		assert.Equal(t, "2026-10-01T12:00:00Z", info.Date)
		assert.True(t, info.Modified)
	})

	t.Run("ldflags win", func(t *testing.T) {
		info := BuildInfo{Version: "2.0.0", Commit: "abc", Date: "today"}
		fillFromBuildInfo(&info, bi)

		assert.Equal(t, "2.0.0", info.Version)
		assert.Equal(t, "abc", info.Commit)
		assert.Equal(t, "today", info.Date)
	})

	t.Run("devel main module keeps dev", func(t *testing.T) {
		info := BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"}
		fillFromBuildInfo(&info, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})

		assert.Equal(t, "dev", info.Version)
		assert.Equal(t, "unknown", info.Commit)
	})
}
