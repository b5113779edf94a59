package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCacheStoreThenLookup(t *testing.T) {
	c := NewMemCache()

	_, ok := c.Lookup("deadbeef")
	require.False(t, ok)

	c.Store("deadbeef", []byte("license-blob"))

	blob, ok := c.Lookup("deadbeef")
	require.True(t, ok)
	assert.Equal(t, []byte("license-blob"), blob)
}

func TestMemCacheCopiesOnStoreAndLookup(t *testing.T) {
	c := NewMemCache()
	original := []byte("mutable")
	c.Store("hwid", original)
	original[0] = 'X'

	blob, _ := c.Lookup("hwid")
	assert.Equal(t, []byte("mutable"), blob)

	blob[0] = 'Y'
	blob2, _ := c.Lookup("hwid")
	assert.Equal(t, []byte("mutable"), blob2)
}
