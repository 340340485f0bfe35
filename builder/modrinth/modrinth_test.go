package modrinth

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/packsmith/builder/modrinth/jsonspec"
	"github.com/packsmith/packsmith/fetcher"
	"github.com/packsmith/packsmith/overrides"
	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/resolve"
	"github.com/packsmith/packsmith/site"
)

func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		r, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		r.Close()
		out[f.Name] = string(data)
	}
	return out
}

func TestBuild(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "curse jar bytes")
	}))
	t.Cleanup(srv.Close)

	src := memfs.New()
	require.NoError(t, util.WriteFile(src, "overrides/config/a.toml", []byte("common"), 0644))
	require.NoError(t, util.WriteFile(src, "server-overrides/server.properties", []byte("props"), 0644))
	ov, err := overrides.Load(src)
	require.NoError(t, err)

	dir := t.TempDir()
	b := &Builder{
		Fetcher: &fetcher.Fetcher{Files: memfs.New(), Client: srv.Client()},
		Dir:     dir,
	}

	cfg := &pack.Config{
		Name:        "Test Pack",
		Description: "a pack",
		Author:      "tester",
		Version:     "1.2.3",
		Minecraft:   "1.21.1",
		Loader:      pack.ModLoader{ID: pack.LoaderFabric, Version: "0.16.5"},
	}
	p := resolve.NewPack(cfg, []*resolve.ResolvedMod{
		{
			Key:    "sodium",
			Direct: true,
			Record: &site.VersionRecord{
				ID:       pack.ModrinthID{ProjectID: "AANobbMI", VersionID: "v1"},
				Filename: "sodium-1.0.jar",
				URL:      "https://cdn.modrinth.com/sodium-1.0.jar",
				Size:     4242,
				Hashes:   map[string]string{"sha1": "aa11", "sha512": "bb22", "md5": "ignored"},
			},
			Sides: pack.Sides{Client: pack.Required, Server: pack.Unsupported},
		},
		{
			Key:    "modrinth:lib",
			Direct: false,
			Record: &site.VersionRecord{
				ID:       pack.ModrinthID{ProjectID: "lib", VersionID: "l1"},
				Filename: "lib-1.0.jar",
				URL:      "https://cdn.modrinth.com/lib-1.0.jar",
				Hashes:   map[string]string{"sha1": "cc33"},
			},
			Sides: pack.Sides{Client: pack.Optional, Server: pack.Required},
		},
		{
			Key:    "jei",
			Direct: true,
			Record: &site.VersionRecord{
				ID:       pack.CurseID{ProjectID: 238222, FileID: 555},
				Filename: "jei-1.0.jar",
				URL:      srv.URL + "/jei.jar",
			},
			Sides: pack.Sides{Client: pack.Required, Server: pack.Unsupported},
		},
	})

	require.NoError(t, b.Build(context.Background(), p, ov))

	entries := zipEntries(t, filepath.Join(dir, "Test Pack (1.2.3).mrpack"))

	var idx jsonspec.Index
	require.NoError(t, json.Unmarshal([]byte(entries["modrinth.index.json"]), &idx))
	assert.Equal(t, 1, idx.FormatVersion)
	assert.Equal(t, "minecraft", idx.Game)
	assert.Equal(t, "1.2.3", idx.VersionID)
	assert.Equal(t, "a pack", idx.Summary)
	assert.Equal(t, map[string]string{
		"minecraft":     "1.21.1",
		"fabric-loader": "0.16.5",
	}, idx.Dependencies)

	// Modrinth mods, direct and transitive, are index entries.
	require.Len(t, idx.Files, 2)
	byPath := map[string]jsonspec.File{}
	for _, f := range idx.Files {
		byPath[f.Path] = f
	}
	sodium := byPath["mods/sodium-1.0.jar"]
	assert.Equal(t, map[string]string{"sha1": "aa11", "sha512": "bb22"}, sodium.Hashes)
	assert.Equal(t, []string{"https://cdn.modrinth.com/sodium-1.0.jar"}, sodium.Downloads)
	assert.EqualValues(t, 4242, sodium.FileSize)
	require.NotNil(t, sodium.Env)
	assert.Equal(t, "required", sodium.Env.Client)
	assert.Equal(t, "unsupported", sodium.Env.Server)
	lib := byPath["mods/lib-1.0.jar"]
	require.NotNil(t, lib.Env)
	assert.Equal(t, "optional", lib.Env.Client)

	// CurseForge files are bundled into the tree matching their sides.
	assert.Equal(t, "curse jar bytes", entries["client-overrides/mods/jei-1.0.jar"])
	assert.Equal(t, "common", entries["overrides/config/a.toml"])
	assert.Equal(t, "props", entries["server-overrides/server.properties"])
}
