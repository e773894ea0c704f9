package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type richness struct {
	Group string
	Count int
}

func TestGenerateKeyIsStable(t *testing.T) {
	a := GenerateKey("POLYGON ((0 0, 1 0, 1 1, 0 0))", 212)
	b := GenerateKey("POLYGON ((0 0, 1 0, 1 1, 0 0))", 212)
	c := GenerateKey("POLYGON ((0 0, 1 0, 1 1, 0 0))", 359)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
}

func TestFileCacheRoundTrip(t *testing.T) {
	fc := NewFileCacheAt[richness](t.TempDir(), 0)
	key := fc.GenerateKey("aves")

	_, ok := fc.Get(key)
	assert.False(t, ok)

	require.NoError(t, fc.Set(key, richness{Group: "Aves", Count: 42}))
	got, ok := fc.Get(key)
	require.True(t, ok)
	assert.Equal(t, richness{Group: "Aves", Count: 42}, got)
}

func TestFileCacheRejectsTamperedEntry(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCacheAt[richness](dir, 0)
	require.NoError(t, fc.Set("k", richness{Group: "Aves", Count: 1}))

	path := filepath.Join(dir, "k.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data":{"Group":"Aves","Count":2},"checksum":"x"}`), 0o644))

	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestFileCacheExpires(t *testing.T) {
	fc := NewFileCacheAt[richness](t.TempDir(), time.Nanosecond)
	require.NoError(t, fc.Set("k", richness{Count: 1}))
	time.Sleep(time.Millisecond)
	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache(t *testing.T) {
	mc := NewMemoryCache[int]()
	require.NoError(t, mc.Set("a", 1))
	v, ok := mc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, mc.Len())

	mc.Clear()
	_, ok = mc.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, mc.Len())
}
