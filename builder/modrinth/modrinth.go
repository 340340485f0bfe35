// Package modrinth exports a .mrpack archive. Modrinth-hosted mods become
// index entries the launcher downloads itself; CurseForge mods have no
// redistributable URLs, so their files are bundled into the override trees
// matching their derived sides.
package modrinth

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/builder"
	"github.com/packsmith/packsmith/builder/archive"
	"github.com/packsmith/packsmith/builder/modrinth/jsonspec"
	"github.com/packsmith/packsmith/fetcher"
	"github.com/packsmith/packsmith/overrides"
	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/resolve"
)

var _ builder.Builder = (*Builder)(nil)

type Builder struct {
	Fetcher *fetcher.Fetcher

	// Dir is the output directory for the archive.
	Dir string
}

func loaderKey(l pack.Loader) string {
	switch l {
	case pack.LoaderFabric:
		return "fabric-loader"
	case pack.LoaderQuilt:
		return "quilt-loader"
	}
	return string(l)
}

func (b *Builder) Build(ctx context.Context, p *resolve.Pack, ov *overrides.Set) error {
	dest := filepath.Join(b.Dir, builder.ArchiveName(p.Config, ".mrpack"))
	log.Info().Str("path", dest).Msg("writing mrpack")

	err := builder.WriteArchive(dest, func(a *archive.Writer) error {
		var files []jsonspec.File
		var common, client, server []*resolve.ResolvedMod
		for _, m := range p.Mods() {
			onClient, onServer := m.Sides.On(pack.ClientSide), m.Sides.On(pack.ServerSide)
			if !onClient && !onServer {
				continue
			}
			if m.Record.ID.Site() == pack.Modrinth {
				files = append(files, indexFile(m))
				continue
			}
			switch {
			case onClient && onServer:
				common = append(common, m)
			case onClient:
				client = append(client, m)
			default:
				server = append(server, m)
			}
		}

		if err := a.AddJSON(index(p.Config, files), "modrinth.index.json"); err != nil {
			return err
		}
		if err := addTree(a, "overrides", ov.Common); err != nil {
			return err
		}
		if err := addTree(a, "client-overrides", ov.Client); err != nil {
			return err
		}
		if err := addTree(a, "server-overrides", ov.Server); err != nil {
			return err
		}
		if err := builder.BundleMods(ctx, a, b.Fetcher, common, "overrides/mods"); err != nil {
			return err
		}
		if err := builder.BundleMods(ctx, a, b.Fetcher, client, "client-overrides/mods"); err != nil {
			return err
		}
		return builder.BundleMods(ctx, a, b.Fetcher, server, "server-overrides/mods")
	})
	if err != nil {
		return fmt.Errorf("mrpack: %w", err)
	}
	return nil
}

func addTree(a *archive.Writer, dir string, fs billy.Filesystem) error {
	if fs == nil {
		return nil
	}
	entries, err := overrides.Tree(fs)
	if err != nil {
		return err
	}
	return a.AddEntries(dir, entries)
}

func indexFile(m *resolve.ResolvedMod) jsonspec.File {
	hashes := make(map[string]string, 2)
	for _, algo := range []string{"sha1", "sha512"} {
		if h, ok := m.Record.Hashes[algo]; ok {
			hashes[algo] = h
		}
	}
	return jsonspec.File{
		Path:   path.Join("mods", m.Record.Filename),
		Hashes: hashes,
		Env: &jsonspec.Env{
			Client: m.Sides.Client.String(),
			Server: m.Sides.Server.String(),
		},
		Downloads: []string{m.Record.URL},
		FileSize:  m.Record.Size,
	}
}

func index(cfg *pack.Config, files []jsonspec.File) *jsonspec.Index {
	if files == nil {
		files = []jsonspec.File{}
	}
	return &jsonspec.Index{
		FormatVersion: 1,
		Game:          "minecraft",
		VersionID:     cfg.Version,
		Name:          cfg.Name,
		Summary:       cfg.Description,
		Files:         files,
		Dependencies: map[string]string{
			"minecraft":           cfg.Minecraft,
			loaderKey(cfg.Loader.ID): cfg.Loader.Version,
		},
	}
}
