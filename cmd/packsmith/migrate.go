package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/subcommands"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/builder/curse/jsonspec"
	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/pack/hclspec"
)

type MigrateCommand struct {
	CursePath  string
	OutputPath string
}

func (*MigrateCommand) Name() string     { return "migrate" }
func (*MigrateCommand) Synopsis() string { return "bootstrap a manifest from a CurseForge pack" }
func (*MigrateCommand) Usage() string {
	return `Usage: packsmith migrate [-curse manifest.json] [-o pack.hcl]

	Converts an existing CurseForge modpack manifest into a pack.hcl.
	Mod entries keep their pinned file ids; metadata and the modloader
	are carried over. Override trees are not copied, move them into
	overrides/ by hand.

Flags:
`
}

func (cmd *MigrateCommand) SetFlags(fs *flag.FlagSet) {
	fs.StringVar(&cmd.CursePath, "curse", "manifest.json", "curse manifest path")
	fs.StringVar(&cmd.OutputPath, "o", pack.ManifestName, "output manifest path")
}

func (cmd *MigrateCommand) Execute(ctx context.Context, fs *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	f, err := os.Open(cmd.CursePath)
	if err != nil {
		log.Error().Err(err).Str("path", cmd.CursePath).Msg("opening curse manifest failed")
		return subcommands.ExitFailure
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Str("path", cmd.CursePath).Msg("closing curse manifest failed")
		}
	}()

	var cm jsonspec.Manifest
	if err := json.NewDecoder(f).Decode(&cm); err != nil {
		log.Error().Err(err).Str("path", cmd.CursePath).Msg("decoding curse manifest failed")
		return subcommands.ExitFailure
	}

	m, err := fromCurseManifest(&cm)
	if err != nil {
		log.Error().Err(err).Msg("converting curse manifest failed")
		return subcommands.ExitFailure
	}

	conf := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(m, conf.Body())
	data := hclwrite.Format(conf.Bytes())

	if err := renameio.WriteFile(cmd.OutputPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", cmd.OutputPath).Msg("writing manifest failed")
		return subcommands.ExitFailure
	}
	log.Info().Str("path", cmd.OutputPath).Int("mods", len(m.CurseMods)).Msg("manifest migrated")
	return subcommands.ExitSuccess
}

func fromCurseManifest(cm *jsonspec.Manifest) (*hclspec.Manifest, error) {
	var primary string
	for _, l := range cm.Minecraft.ModLoaders {
		if l.Primary || primary == "" {
			primary = l.ID
		}
	}
	id, version, ok := strings.Cut(primary, "-")
	if !ok {
		return nil, fmt.Errorf("unrecognized modloader id %q", primary)
	}
	if _, err := pack.ParseLoader(id); err != nil {
		return nil, err
	}

	m := &hclspec.Manifest{
		Name:        cm.Name,
		Description: cm.Desc,
		Author:      cm.Author,
		Version:     cm.Version,
		Minecraft:   cm.Minecraft.Version,
		Loader:      hclspec.Loader{ID: id, Version: version},
	}
	for _, cf := range cm.Files {
		m.CurseMods = append(m.CurseMods, hclspec.CurseMod{
			Key:       fmt.Sprintf("mod-%d", cf.ProjectID),
			ProjectID: cf.ProjectID,
			FileID:    cf.FileID,
		})
	}
	return m, nil
}
