package site

import (
	"context"
	"testing"

	"github.com/akrylysov/pogreb"
	pogrebfs "github.com/akrylysov/pogreb/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/packsmith/pack"
)

type countingClient struct {
	versions int
	projects int
	latest   int
}

func (*countingClient) Site() pack.Platform { return pack.Modrinth }

func (c *countingClient) Version(ctx context.Context, id pack.ModID) (*VersionRecord, error) {
	c.versions++
	return &VersionRecord{
		ID:                  id,
		Name:                "Cached Mod",
		Filename:            "cached.jar",
		Hashes:              map[string]string{"sha1": "aa"},
		DistributionAllowed: true,
	}, nil
}

func (c *countingClient) Project(ctx context.Context, key pack.ProjectKey) (*ProjectRecord, error) {
	c.projects++
	return &ProjectRecord{Key: key, Name: "Cached Mod", DistributionAllowed: true}, nil
}

func (c *countingClient) LatestVersion(ctx context.Context, key pack.ProjectKey, game Game) (pack.ModID, error) {
	c.latest++
	return pack.ModrinthID{ProjectID: key.ID, VersionID: "v1"}, nil
}

func testCache(t *testing.T) (*Cache, *countingClient) {
	t.Helper()
	db, err := pogreb.Open("cache-test", &pogreb.Options{FileSystem: pogrebfs.Mem})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	inner := &countingClient{}
	return NewCache(inner, db), inner
}

func TestCacheVersion(t *testing.T) {
	c, inner := testCache(t)
	ctx := context.Background()
	id := pack.ModrinthID{ProjectID: "aaaa", VersionID: "v1"}

	first, err := c.Version(ctx, id)
	require.NoError(t, err)
	second, err := c.Version(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.versions)
	// The identifier survives the round trip even though it is not encoded.
	assert.Equal(t, id, second.ID)
	assert.Equal(t, first.Filename, second.Filename)
	assert.Equal(t, first.Hashes, second.Hashes)
	assert.True(t, second.DistributionAllowed)

	// A different version misses.
	_, err = c.Version(ctx, pack.ModrinthID{ProjectID: "aaaa", VersionID: "v2"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.versions)
}

func TestCacheProject(t *testing.T) {
	c, inner := testCache(t)
	ctx := context.Background()
	key := pack.ModrinthProject("aaaa")

	_, err := c.Project(ctx, key)
	require.NoError(t, err)
	rec, err := c.Project(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.projects)
	assert.Equal(t, "Cached Mod", rec.Name)
}

func TestCacheNeverCachesLatestVersion(t *testing.T) {
	c, inner := testCache(t)
	ctx := context.Background()
	game := Game{Minecraft: "1.21.1", Loader: pack.LoaderFabric}

	for i := 0; i < 3; i++ {
		_, err := c.LatestVersion(ctx, pack.ModrinthProject("aaaa"), game)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.latest)
}
