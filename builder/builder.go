// Package builder holds the exporters' shared surface. Each exporter turns
// a resolved pack plus its override trees into one distributable artifact;
// outputs appear atomically or not at all, so builders may run concurrently
// and a failed run never leaves a partial file behind.
package builder

import (
	"context"
	"fmt"
	"path"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/builder/archive"
	"github.com/packsmith/packsmith/fetcher"
	"github.com/packsmith/packsmith/overrides"
	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/resolve"
)

type Builder interface {
	Build(ctx context.Context, p *resolve.Pack, ov *overrides.Set) error
}

// ArchiveName is the output file name shared by the archive formats.
func ArchiveName(cfg *pack.Config, ext string) string {
	return fmt.Sprintf("%s (%s)%s", cfg.Name, cfg.Version, ext)
}

// WriteArchive streams a zip through fn into a pending file that replaces
// dest only when fn and the zip trailer both succeed.
func WriteArchive(dest string, fn func(*archive.Writer) error) error {
	pf, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0644))
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() {
		if err := pf.Cleanup(); err != nil {
			log.Warn().Err(err).Str("path", dest).Msg("cleaning up pending output failed")
		}
	}()

	a := archive.NewWriter(pf)
	if err := fn(a); err != nil {
		return err
	}
	if err := a.Close(); err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("finalize %s: %w", dest, err)
	}
	return nil
}

// BundleMods materializes the given mods and embeds them in the archive
// under dir.
func BundleMods(ctx context.Context, a *archive.Writer, dl *fetcher.Fetcher, mods []*resolve.ResolvedMod, dir string) error {
	for _, m := range mods {
		f, err := dl.Materialize(ctx, m.Record)
		if err != nil {
			return fmt.Errorf("mod %s: %w", m.Key, err)
		}
		err = a.AddReader(f, path.Join(dir, m.Record.Filename))
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("mod", m.Key).Msg("closing store blob failed")
		}
		if err != nil {
			return fmt.Errorf("mod %s: %w", m.Key, err)
		}
	}
	return nil
}
