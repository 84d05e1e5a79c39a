package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "drive.yml")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestNewAtPath(t *testing.T) {
	c, err := NewAtPath("/tmp/drive.yml")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/drive.yml", c.GetPath())
	assert.Equal(t, "0.0.0.0", c.Api.Host)
	assert.Equal(t, 8080, c.Api.Port)
	assert.Equal(t, int64(100), c.Api.UploadLimit)
	assert.Equal(t, "/var/lib/cloudpage/drives", c.System.Data)
	assert.Equal(t, 4, c.System.ListWorkers)
	assert.Equal(t, 0, c.System.WriteLimit)
}

func TestFromFile(t *testing.T) {
	t.Run("reads values and keeps defaults", func(t *testing.T) {
		t.Setenv("DRIVE_TEST_TOKEN", "secret-token")
		p := writeConfig(t, `
token: ${DRIVE_TEST_TOKEN}
api:
  port: 9090
system:
  data: /srv/drives
  denylist:
    - "*.lock"
  write_limit: 5
`)

		require.NoError(t, FromFile(p))
		c := Get()
		assert.Equal(t, p, c.GetPath())
		assert.Equal(t, "secret-token", c.AuthenticationToken)
		assert.Equal(t, 9090, c.Api.Port)
		assert.Equal(t, "0.0.0.0", c.Api.Host)
		assert.Equal(t, "/srv/drives", c.System.Data)
		assert.Equal(t, []string{"*.lock"}, c.System.Denylist)
		assert.Equal(t, int64(5*1024*1024), c.System.WriteLimitBytes())
		assert.Equal(t, 4, c.System.ListWorkers)
	})

	t.Run("requires an authentication token", func(t *testing.T) {
		p := writeConfig(t, "debug: true\n")
		assert.Error(t, FromFile(p))
	})

	t.Run("returns an error for a missing file", func(t *testing.T) {
		err := FromFile(filepath.Join(t.TempDir(), "missing.yml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestUpdate(t *testing.T) {
	c, err := NewAtPath("")
	require.NoError(t, err)
	Set(c)

	Update(func(c *Configuration) {
		c.AuthenticationToken = "rotated"
	})
	assert.Equal(t, "rotated", Get().AuthenticationToken)

	// Changes to the returned copy are not stored.
	cp := Get()
	cp.AuthenticationToken = "changed"
	assert.Equal(t, "rotated", Get().AuthenticationToken)
}

func TestWriteToDisk(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "drive.yml")
	c, err := NewAtPath(p)
	require.NoError(t, err)
	c.AuthenticationToken = "abc123"
	c.Api.Port = 8443
	Set(c)
	SetDebugViaFlag(true)
	defer SetDebugViaFlag(false)

	require.NoError(t, WriteToDisk(c))

	require.NoError(t, FromFile(p))
	assert.Equal(t, "abc123", Get().AuthenticationToken)
	assert.Equal(t, 8443, Get().Api.Port)
	assert.False(t, Get().Debug)

	c.path = ""
	assert.Error(t, WriteToDisk(c))
}

func TestSystemConfiguration_ConfigureDirectories(t *testing.T) {
	base := t.TempDir()
	sc := SystemConfiguration{
		RootDirectory: filepath.Join(base, "root"),
		LogDirectory:  filepath.Join(base, "logs"),
		Data:          filepath.Join(base, "data"),
	}
	require.NoError(t, sc.ConfigureDirectories())

	for _, p := range []string{sc.RootDirectory, sc.LogDirectory, sc.Data} {
		st, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
	assert.Equal(t, filepath.Join(base, "data", "user-1"), sc.UserDirectory("user-1"))
}
