package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/packsmith/pack"
)

func modrinthTestServer(t *testing.T, mux *http.ServeMux) *ModrinthClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewModrinthClient(srv.Client())
	c.BaseURL = srv.URL
	return c
}

const modrinthProjectJSON = `{
	"id": "AANobbMI",
	"title": "Sodium",
	"project_type": "mod",
	"client_side": "required",
	"server_side": "unsupported"
}`

const modrinthVersionJSON = `{
	"id": "v1",
	"project_id": "AANobbMI",
	"game_versions": ["1.21", "1.21.1"],
	"loaders": ["fabric"],
	"files": [
		{"hashes": {"sha1": "aa", "sha512": "bb"}, "url": "https://cdn.modrinth.com/extra.jar", "filename": "extra.jar", "primary": false, "size": 1},
		{"hashes": {"sha1": "cc", "sha512": "dd"}, "url": "https://cdn.modrinth.com/sodium.jar", "filename": "sodium.jar", "primary": true, "size": 4242}
	],
	"dependencies": [
		{"version_id": null, "project_id": "P7dR8mSH", "dependency_type": "required"},
		{"version_id": null, "project_id": null, "dependency_type": "required"},
		{"version_id": null, "project_id": "iAiqcykM", "dependency_type": "incompatible"}
	]
}`

func TestModrinthVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/AANobbMI", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modrinthProjectJSON))
	})
	mux.HandleFunc("/version/v1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modrinthVersionJSON))
	})
	c := modrinthTestServer(t, mux)

	rec, err := c.Version(context.Background(), pack.ModrinthID{ProjectID: "AANobbMI", VersionID: "v1"})
	require.NoError(t, err)

	assert.Equal(t, "Sodium", rec.Name)
	// The primary file wins over earlier entries.
	assert.Equal(t, "sodium.jar", rec.Filename)
	assert.EqualValues(t, 4242, rec.Size)
	assert.Equal(t, map[string]string{"sha1": "cc", "sha512": "dd"}, rec.Hashes)
	assert.True(t, rec.DistributionAllowed)
	require.NotNil(t, rec.Sides)
	assert.Equal(t, pack.Sides{Client: pack.Required, Server: pack.Unsupported}, *rec.Sides)
	// The dependency without a project reference is dropped.
	assert.Equal(t, []Dependency{
		{Project: pack.ModrinthProject("P7dR8mSH"), Kind: DepRequired},
		{Project: pack.ModrinthProject("iAiqcykM"), Kind: DepIncompatible},
	}, rec.Dependencies)
}

func TestModrinthVersionProjectMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version/v1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modrinthVersionJSON))
	})
	c := modrinthTestServer(t, mux)

	_, err := c.Version(context.Background(), pack.ModrinthID{ProjectID: "other", VersionID: "v1"})
	require.ErrorContains(t, err, "belongs to project")
}

func TestModrinthRejectsNonModProject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/some-pack", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "some-pack", "title": "A Pack", "project_type": "modpack", "client_side": "required", "server_side": "required"}`))
	})
	c := modrinthTestServer(t, mux)

	_, err := c.Project(context.Background(), pack.ModrinthProject("some-pack"))
	require.ErrorContains(t, err, "not a mod")
}

func TestModrinthUnknownSides(t *testing.T) {
	assert.Nil(t, modrinthSides("unknown", "unknown"))
	s := modrinthSides("optional", "unknown")
	require.NotNil(t, s)
	// A missing hint never drops a mod from an output.
	assert.Equal(t, pack.Sides{Client: pack.Optional, Server: pack.Required}, *s)
}

func TestModrinthLatestVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/AANobbMI/version", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, `["1.21.1"]`, q.Get("game_versions"))
		assert.Equal(t, `["fabric"]`, q.Get("loaders"))
		w.Write([]byte(`[{"id": "new", "project_id": "AANobbMI"}, {"id": "old", "project_id": "AANobbMI"}]`))
	})
	c := modrinthTestServer(t, mux)

	game := Game{Minecraft: "1.21.1", Loader: pack.LoaderFabric}
	id, err := c.LatestVersion(context.Background(), pack.ModrinthProject("AANobbMI"), game)
	require.NoError(t, err)
	assert.Equal(t, pack.ModrinthID{ProjectID: "AANobbMI", VersionID: "new"}, id)
}

func TestModrinthLatestVersionEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project/AANobbMI/version", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	c := modrinthTestServer(t, mux)

	game := Game{Minecraft: "1.21.1", Loader: pack.LoaderFabric}
	_, err := c.LatestVersion(context.Background(), pack.ModrinthProject("AANobbMI"), game)
	assert.True(t, IsNotFound(err))
}
