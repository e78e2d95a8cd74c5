package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("example.com:/srv/data"))
	assert.True(t, IsRemote("10.0.0.1:relative/path"))
	assert.False(t, IsRemote("/local/path"))
	assert.False(t, IsRemote("relative/path"))
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		host     string
		path     string
	}{
		{"example.com:/srv/data.bin", "example.com", "/srv/data.bin"},
		{"10.0.0.1:rel/path", "10.0.0.1", "rel/path"},
		// Only the first colon splits; the path keeps the rest.
		{"host:/dir/file:v2", "host", "/dir/file:v2"},
		{"host:", "host", ""},
		{"nocolon", "nocolon", ""},
	}
	for _, tt := range tests {
		host, path := SplitEndpoint(tt.endpoint)
		assert.Equal(t, tt.host, host, "endpoint %q", tt.endpoint)
		assert.Equal(t, tt.path, path, "endpoint %q", tt.endpoint)
	}
}
