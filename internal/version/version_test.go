package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithBuildSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "3f2a9c1d0e5b"},
		{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	info := withBuildSettings(Info{Version: "1.2.0"}, settings)
	assert.Equal(t, "3f2a9c1d0e5b", info.GitCommit)
	assert.Equal(t, "2024-05-01T10:00:00Z", info.BuildDate)
	assert.Equal(t, "1.2.0 (3f2a9c1, modified)", info.Short())

	// Link time values win
	info = withBuildSettings(Info{Version: "1.2.0", GitCommit: "abc"}, settings)
	assert.Equal(t, "abc", info.GitCommit)
}

func TestShort(t *testing.T) {
	assert.Equal(t, "dev", Info{Version: "dev"}.Short())
	assert.Equal(t, "1.0.0 (abcdef1)", Info{Version: "1.0.0", GitCommit: "abcdef1234"}.Short())
}

func TestString(t *testing.T) {
	s := Info{Version: "dev", GoVersion: "go1.23.0", Platform: "linux/amd64"}.String()
	assert.Equal(t, "confhub dev\nbuilt unknown with go1.23.0 for linux/amd64", s)
	assert.Len(t, GetInfo().Fields(), 4)
}
