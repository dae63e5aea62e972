package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchiveName(t *testing.T) {
	cases := []struct {
		filename, name, version string
	}{
		{"littlenotes-c1b87d2.tar.bz2", "littlenotes", "c1b87d2"},
		{"my-app-2.0-rc1.tar.gz", "my-app", "2.0-rc1"},
		{"svc-1.0.tar.gz", "svc", "1.0"},
	}
	for _, c := range cases {
		name, version, err := ParseArchiveName(c.filename)
		require.NoError(t, err, c.filename)
		assert.Equal(t, c.name, name, c.filename)
		assert.Equal(t, c.version, version, c.filename)
	}
}

func TestParseArchiveName_NoVersion(t *testing.T) {
	_, _, err := ParseArchiveName("no-version.tar.gz")
	require.Error(t, err)
}

func TestArchiveNameRoundTrip(t *testing.T) {
	cases := []struct{ name, version string }{
		{"svc", "1.0"},
		{"littlenotes", "c1b87d2"},
		{"my-app", "2.0-rc1"},
	}
	for _, c := range cases {
		formatted := FormatArchiveName(c.name, c.version, ".tar.gz")
		name, version, err := ParseArchiveName(formatted)
		require.NoError(t, err, formatted)
		assert.Equal(t, c.name, name)
		assert.Equal(t, c.version, version)
	}
}
