package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio/v2"
	"github.com/google/subcommands"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/pkg/diff"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/pack/hclspec"
)

type FormatCommand struct {
	DisableCheck bool
	Overwrite    bool
	ContextSize  int
}

func (*FormatCommand) Name() string     { return "fmt" }
func (*FormatCommand) Synopsis() string { return "format pack manifests" }
func (*FormatCommand) Usage() string {
	return `Usage: packsmith fmt [-c int] [-w] [-nocheck] [manifest paths]

	Formats manifests using standard syntax. It can either write files
	in place or print a unified diff with the specified context size.

Flags:
`
}

func (cmd *FormatCommand) SetFlags(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.DisableCheck, "nocheck", false, "disable diagnostics")
	fs.BoolVar(&cmd.Overwrite, "w", false, "write result to (source) file instead of stdout")
	fs.IntVar(&cmd.ContextSize, "c", 3, "output n lines of diff context")
}

func (cmd *FormatCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	var color bool
	var parser *hclparse.Parser
	var diagWr hcl.DiagnosticWriter
	if !cmd.DisableCheck {
		parser = hclparse.NewParser()
		diagWr, color = newDiagWr(parser)
	}

	paths := fs.Args()
	if len(paths) <= 0 {
		paths = []string{pack.ManifestName}
	} else {
		sort.Strings(paths)
	}

	seen := make(map[string]bool, len(paths))
	for _, fpath := range paths {
		if seen[fpath] {
			continue
		}
		seen[fpath] = true
		src, err := os.ReadFile(fpath)
		if err != nil {
			log.Error().Err(err).Str("path", fpath).Msg("reading manifest failed")
			return subcommands.ExitFailure
		}

		if !cmd.DisableCheck {
			file, diags := parser.ParseHCL(src, fpath)
			if !diags.HasErrors() {
				diags = append(diags, gohcl.DecodeBody(file.Body, nil, &hclspec.Manifest{})...)
			}
			if err := diagWr.WriteDiagnostics(diags); err != nil {
				log.Error().Err(err).Msg("writing diagnostics failed")
				return subcommands.ExitFailure
			}
			if diags.HasErrors() {
				return subcommands.ExitFailure
			}
		}

		outSrc := hclwrite.Format(src)
		if bytes.Equal(src, outSrc) {
			continue
		}
		if !cmd.Overwrite {
			if err := cmd.writeDiff(ctx, fpath, src, outSrc, color); err != nil {
				log.Error().Err(err).Msg("writing diff failed")
				return subcommands.ExitFailure
			}
			continue
		}
		if err := renameio.WriteFile(fpath, outSrc, 0644); err != nil {
			log.Error().Err(err).Str("path", fpath).Msg("writing manifest failed")
			return subcommands.ExitFailure
		}
	}

	return subcommands.ExitSuccess
}

func (cmd *FormatCommand) writeDiff(ctx context.Context, fpath string, src, outSrc []byte, color bool) error {
	fpath = filepath.ToSlash(fpath)
	aname := fmt.Sprintf("a/%s", fpath)
	bname := fmt.Sprintf("b/%s", fpath)
	opts := []diff.WriteOpt{diff.Names(aname, bname)}
	if color {
		opts = append(opts, diff.TerminalColor())
	}
	a, b := splitLines(src), splitLines(outSrc)
	pair := diff.Bytes(a, b)
	edit := diff.Myers(ctx, pair)
	if cmd.ContextSize >= 0 {
		edit = edit.WithContextSize(cmd.ContextSize)
	}
	_, err := edit.WriteUnified(os.Stdout, pair, opts...)
	return err
}

func splitLines(b []byte) [][]byte {
	return bytes.Split(b, []byte("\n"))
}
