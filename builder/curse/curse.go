// Package curse exports a CurseForge client modpack zip. Directly configured
// CurseForge mods become manifest file references that the launcher fetches
// itself; everything else included on the client side (Modrinth mods,
// transitive pulls) is bundled into overrides/mods/.
package curse

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/builder"
	"github.com/packsmith/packsmith/builder/archive"
	"github.com/packsmith/packsmith/builder/curse/jsonspec"
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

func (b *Builder) Build(ctx context.Context, p *resolve.Pack, ov *overrides.Set) error {
	dest := filepath.Join(b.Dir, builder.ArchiveName(p.Config, ".zip"))
	log.Info().Str("path", dest).Msg("writing curseforge pack")

	err := builder.WriteArchive(dest, func(a *archive.Writer) error {
		var refs []jsonspec.File
		var bundled []*resolve.ResolvedMod
		for _, m := range p.ModsOn(pack.ClientSide) {
			if id, ok := m.Record.ID.(pack.CurseID); ok && m.Direct {
				refs = append(refs, jsonspec.File{
					ProjectID: id.ProjectID,
					FileID:    id.FileID,
					Required:  true,
				})
				continue
			}
			bundled = append(bundled, m)
		}

		if err := a.AddJSON(manifest(p.Config, refs), "manifest.json"); err != nil {
			return err
		}
		entries, err := ov.Merged(pack.ClientSide)
		if err != nil {
			return err
		}
		if err := a.AddEntries("overrides", entries); err != nil {
			return err
		}
		return builder.BundleMods(ctx, a, b.Fetcher, bundled, "overrides/mods")
	})
	if err != nil {
		return fmt.Errorf("curseforge pack: %w", err)
	}
	return nil
}

func manifest(cfg *pack.Config, refs []jsonspec.File) *jsonspec.Manifest {
	if refs == nil {
		refs = []jsonspec.File{}
	}
	return &jsonspec.Manifest{
		ManifestType:    "minecraftModpack",
		ManifestVersion: 1,
		Minecraft: jsonspec.MinecraftInstance{
			Version: cfg.Minecraft,
			ModLoaders: []jsonspec.ModLoader{{
				ID:      fmt.Sprintf("%s-%s", cfg.Loader.ID, cfg.Loader.Version),
				Primary: true,
			}},
		},
		Name:      cfg.Name,
		Version:   cfg.Version,
		Author:    cfg.Author,
		Desc:      cfg.Description,
		Files:     refs,
		Overrides: "overrides",
	}
}
