// Package server exports a ready-to-run server directory: server-side mods
// materialized from the store, merged common+server overrides, and a
// modloader.json describing the loader installation. The directory is
// assembled next to the destination and swapped into place, so an existing
// server dir is replaced only by a fully built one.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/builder"
	"github.com/packsmith/packsmith/fetcher"
	"github.com/packsmith/packsmith/overrides"
	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/resolve"
)

var _ builder.Builder = (*Builder)(nil)

type Builder struct {
	Fetcher *fetcher.Fetcher

	// Dir is the destination server directory.
	Dir string
}

// modloaderRef is written as modloader.json so server setup scripts know
// which loader to install.
type modloaderRef struct {
	Loader    pack.Loader `json:"loader"`
	Version   string      `json:"version"`
	Minecraft string      `json:"minecraft"`
	Installer string      `json:"installer,omitempty"`
}

func installerURL(l pack.ModLoader, minecraft string) string {
	switch l.ID {
	case pack.LoaderForge:
		return fmt.Sprintf("https://maven.minecraftforge.net/net/minecraftforge/forge/%s-%s/forge-%s-%s-installer.jar",
			minecraft, l.Version, minecraft, l.Version)
	case pack.LoaderNeoforge:
		return fmt.Sprintf("https://maven.neoforged.net/releases/net/neoforged/neoforge/%s/neoforge-%s-installer.jar",
			l.Version, l.Version)
	}
	// Fabric and Quilt install through their own meta services.
	return ""
}

func (b *Builder) Build(ctx context.Context, p *resolve.Pack, ov *overrides.Set) error {
	log.Info().Str("path", b.Dir).Msg("building server directory")

	parent := filepath.Dir(b.Dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(parent, ".packsmith-server-")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", tmp).Msg("removing staging directory failed")
		}
	}()

	if err := b.assemble(ctx, tmp, p, ov); err != nil {
		return fmt.Errorf("server dir: %w", err)
	}
	if err := swap(tmp, b.Dir); err != nil {
		return fmt.Errorf("server dir: %w", err)
	}
	return nil
}

func (b *Builder) assemble(ctx context.Context, dir string, p *resolve.Pack, ov *overrides.Set) error {
	for _, m := range p.ModsOn(pack.ServerSide) {
		src, err := b.Fetcher.Materialize(ctx, m.Record)
		if err != nil {
			return fmt.Errorf("mod %s: %w", m.Key, err)
		}
		err = writeFile(filepath.Join(dir, "mods", m.Record.Filename), src)
		if cerr := src.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("mod", m.Key).Msg("closing store blob failed")
		}
		if err != nil {
			return fmt.Errorf("mod %s: %w", m.Key, err)
		}
	}

	// Overrides go in after the mods so they win path conflicts.
	entries, err := ov.Merged(pack.ServerSide)
	if err != nil {
		return err
	}
	for _, e := range entries {
		f, err := e.Open()
		if err != nil {
			return err
		}
		err = writeFile(filepath.Join(dir, filepath.FromSlash(e.Path)), f)
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("path", e.Path).Msg("closing override entry failed")
		}
		if err != nil {
			return err
		}
	}

	ref := modloaderRef{
		Loader:    p.Config.Loader.ID,
		Version:   p.Config.Loader.Version,
		Minecraft: p.Config.Minecraft,
		Installer: installerURL(p.Config.Loader, p.Config.Minecraft),
	}
	data, err := json.MarshalIndent(&ref, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "modloader.json"), append(data, '\n'), 0644)
}

func writeFile(dest string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// swap moves the staged directory to dest, displacing a previous build.
func swap(staged, dest string) error {
	old := dest + ".old"
	displaced := false
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(old); err != nil {
			return err
		}
		if err := os.Rename(dest, old); err != nil {
			return err
		}
		displaced = true
	}
	if err := os.Rename(staged, dest); err != nil {
		if displaced {
			if rerr := os.Rename(old, dest); rerr != nil {
				log.Error().Err(rerr).Str("path", dest).Msg("restoring previous server directory failed")
			}
		}
		return err
	}
	if displaced {
		if err := os.RemoveAll(old); err != nil {
			log.Warn().Err(err).Str("path", old).Msg("removing previous server directory failed")
		}
	}
	return nil
}
