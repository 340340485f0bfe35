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

func curseTestServer(t *testing.T, routes map[string]string) *CurseClient {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Key") == "" {
				http.Error(w, "missing key", http.StatusForbidden)
				return
			}
			w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewCurseClient(srv.Client(), "test-key")
	c.BaseURL = srv.URL
	return c
}

const curseModJSON = `{"data":{
	"id": 238222,
	"name": "Just Enough Items",
	"allowModDistribution": null
}}`

const curseFileJSON = `{"data":{
	"id": 555,
	"modId": 238222,
	"fileName": "jei-1.21.1.jar",
	"downloadUrl": "https://edge.forgecdn.net/files/555/jei-1.21.1.jar",
	"fileLength": 1048576,
	"hashes": [
		{"value": "AA11BB", "algo": 1},
		{"value": "cc22dd", "algo": 2},
		{"value": "ignored", "algo": 9}
	],
	"gameVersions": ["1.21.1", "NeoForge"],
	"dependencies": [
		{"modId": 100, "relationType": 3},
		{"modId": 200, "relationType": 2},
		{"modId": 300, "relationType": 5},
		{"modId": 400, "relationType": 1}
	]
}}`

func TestCurseVersion(t *testing.T) {
	c := curseTestServer(t, map[string]string{
		"/mods/238222":           curseModJSON,
		"/mods/238222/files/555": curseFileJSON,
	})

	rec, err := c.Version(context.Background(), pack.CurseID{ProjectID: 238222, FileID: 555})
	require.NoError(t, err)

	assert.Equal(t, "Just Enough Items", rec.Name)
	assert.Equal(t, "jei-1.21.1.jar", rec.Filename)
	assert.EqualValues(t, 1048576, rec.Size)
	assert.True(t, rec.DistributionAllowed)
	assert.Equal(t, map[string]string{"sha1": "AA11BB", "md5": "cc22dd"}, rec.Hashes)
	assert.Nil(t, rec.Sides)
	assert.Equal(t, []Dependency{
		{Project: pack.CurseProject(100), Kind: DepRequired},
		{Project: pack.CurseProject(200), Kind: DepOptional},
		{Project: pack.CurseProject(300), Kind: DepIncompatible},
		{Project: pack.CurseProject(400), Kind: DepOther},
	}, rec.Dependencies)
}

func TestCurseDistributionDenied(t *testing.T) {
	c := curseTestServer(t, map[string]string{
		"/mods/777": `{"data":{"id": 777, "name": "NoDist", "allowModDistribution": false}}`,
	})

	proj, err := c.Project(context.Background(), pack.CurseProject(777))
	require.NoError(t, err)
	assert.False(t, proj.DistributionAllowed)
}

func TestCurseProjectNotFound(t *testing.T) {
	c := curseTestServer(t, nil)
	_, err := c.Project(context.Background(), pack.CurseProject(999))
	assert.True(t, IsNotFound(err))
}

func TestCurseRequiresAPIKey(t *testing.T) {
	c := NewCurseClient(http.DefaultClient, "")
	_, err := c.Project(context.Background(), pack.CurseProject(1))
	require.ErrorContains(t, err, "no API key")
}

func TestCurseRejectsForeignID(t *testing.T) {
	c := NewCurseClient(http.DefaultClient, "k")
	_, err := c.Version(context.Background(), pack.ModrinthID{ProjectID: "a", VersionID: "v"})
	assert.ErrorIs(t, err, ErrWrongSite)
}

func TestCurseLatestVersion(t *testing.T) {
	c := curseTestServer(t, map[string]string{
		"/mods/238222/files": `{"data":[
			{"id": 10, "gameVersions": ["1.21.1", "NeoForge"]},
			{"id": 30, "gameVersions": ["1.21.1", "Fabric"]},
			{"id": 20, "gameVersions": ["1.21.1", "NeoForge"]}
		]}`,
	})

	game := Game{Minecraft: "1.21.1", Loader: pack.LoaderNeoforge}
	id, err := c.LatestVersion(context.Background(), pack.CurseProject(238222), game)
	require.NoError(t, err)
	assert.Equal(t, pack.CurseID{ProjectID: 238222, FileID: 20}, id)

	// No file carries the Quilt tag.
	game.Loader = pack.LoaderQuilt
	_, err = c.LatestVersion(context.Background(), pack.CurseProject(238222), game)
	assert.True(t, IsNotFound(err))
}
