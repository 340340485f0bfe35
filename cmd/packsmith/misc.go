package main

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/akrylysov/pogreb"
	pogrebfs "github.com/akrylysov/pogreb/fs"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/site"
)

func cacheDir() string {
	return filepath.Join(xdg.CacheHome, programName)
}

// openDB opens the metadata cache. With nocache the database is backed by
// memory, so decorating the clients stays unconditional.
func openDB(nocache bool) (*pogreb.DB, error) {
	if nocache {
		return pogreb.Open(".", &pogreb.Options{FileSystem: pogrebfs.Mem})
	}
	dir := filepath.Join(cacheDir(), "db")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return pogreb.Open(dir, nil)
}

func closeDB(db *pogreb.DB) {
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing metadata cache failed")
	}
}

// newClients wires both platform clients behind the metadata cache. The
// CurseForge key may be empty; the client reports the missing key only when
// a request actually needs it.
func newClients(gc *pack.GlobalConfig, hc *http.Client, db *pogreb.DB) site.Clients {
	curse := site.NewCurseClient(hc, gc.CurseForgeAPIKey)
	modrinth := site.NewModrinthClient(hc)
	return site.Clients{
		pack.CurseForge: site.NewCache(curse, db),
		pack.Modrinth:   site.NewCache(modrinth, db),
	}
}

func newDiagWr(p *hclparse.Parser) (diagWr hcl.DiagnosticWriter, color bool) {
	stderr := os.Stderr
	istty := isatty.IsTerminal(stderr.Fd())
	color = istty
	// See https://no-color.org
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		color = false
	}
	return hcl.NewDiagnosticTextWriter(stderr, p.Files(), 80, color), color
}

// loadPack loads and validates a source directory's manifest, rendering
// diagnostics to stderr.
func loadPack(dir string) (*pack.Config, bool) {
	parser := hclparse.NewParser()
	cfg, diags := pack.LoadDir(dir, parser)
	if len(diags) > 0 {
		diagWr, _ := newDiagWr(parser)
		if err := diagWr.WriteDiagnostics(diags); err != nil {
			log.Error().Err(err).Msg("writing diagnostics failed")
		}
	}
	return cfg, !diags.HasErrors()
}
