package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/subcommands"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/rs/zerolog/log"
	"github.com/zclconf/go-cty/cty"

	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/site"
)

type AddCommand struct {
	Site         string
	DisableCache bool
}

func (*AddCommand) Name() string     { return "add" }
func (*AddCommand) Synopsis() string { return "add mods to a pack manifest" }
func (*AddCommand) Usage() string {
	return `Usage: packsmith add [-site curseforge|modrinth] [-nocache] source projectID...

	Looks up the latest version of each project matching the pack's
	game version and modloader and appends a pinned mod block to the
	source directory's pack.hcl. The rest of the manifest text is left
	untouched.

Flags:
`
}

func (cmd *AddCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.Site, "site", string(pack.Modrinth), "platform hosting the projects")
	f.BoolVar(&cmd.DisableCache, "nocache", false, "disable the metadata cache")
}

func (cmd *AddCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		log.Error().Msg("expected a source directory and at least one project id")
		return subcommands.ExitUsageError
	}
	platform := pack.Platform(cmd.Site)
	if platform != pack.CurseForge && platform != pack.Modrinth {
		log.Error().Str("site", cmd.Site).Msg("unknown platform")
		return subcommands.ExitUsageError
	}
	source := f.Arg(0)

	cfg, ok := loadPack(source)
	if !ok {
		return subcommands.ExitFailure
	}
	gc, err := pack.LoadGlobalConfig()
	if err != nil {
		log.Error().Err(err).Msg("loading global config failed")
		return subcommands.ExitFailure
	}
	db, err := openDB(cmd.DisableCache)
	if err != nil {
		log.Error().Err(err).Msg("opening metadata cache failed")
		return subcommands.ExitFailure
	}
	defer closeDB(db)

	clients := newClients(gc, &http.Client{}, db)
	client, err := clients.For(platform)
	if err != nil {
		log.Error().Err(err).Msg("no client")
		return subcommands.ExitFailure
	}

	fpath := filepath.Join(source, pack.ManifestName)
	src, err := os.ReadFile(fpath)
	if err != nil {
		log.Error().Err(err).Str("path", fpath).Msg("reading manifest failed")
		return subcommands.ExitFailure
	}
	file, diags := hclwrite.ParseConfig(src, fpath, hcl.InitialPos)
	if diags.HasErrors() {
		log.Error().Msgf("parsing manifest failed:\n%v", diags)
		return subcommands.ExitFailure
	}

	game := site.Game{Minecraft: cfg.Minecraft, Loader: cfg.Loader.ID}
	for _, arg := range f.Args()[1:] {
		key := pack.ProjectKey{Site: platform, ID: arg}
		if platform == pack.CurseForge {
			if _, err := strconv.ParseInt(arg, 10, 32); err != nil {
				log.Error().Str("project", arg).Msg("curseforge project ids are numeric")
				return subcommands.ExitFailure
			}
		}
		if err := cmd.addProject(ctx, client, file.Body(), cfg, key, game); err != nil {
			log.Error().Err(err).Str("project", arg).Msg("adding mod failed")
			return subcommands.ExitFailure
		}
	}

	if err := renameio.WriteFile(fpath, hclwrite.Format(file.Bytes()), 0644); err != nil {
		log.Error().Err(err).Str("path", fpath).Msg("writing manifest failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *AddCommand) addProject(ctx context.Context, client site.Client, body *hclwrite.Body, cfg *pack.Config, key pack.ProjectKey, game site.Game) error {
	proj, err := client.Project(ctx, key)
	if err != nil {
		return err
	}
	id, err := client.LatestVersion(ctx, key, game)
	if err != nil {
		return err
	}

	blockKey := slugify(proj.Name)
	if cfg.Mod(blockKey) != nil {
		blockKey = blockKey + "-" + key.ID
	}

	body.AppendNewline()
	switch v := id.(type) {
	case pack.CurseID:
		b := body.AppendNewBlock("curseforge", []string{blockKey}).Body()
		b.SetAttributeValue("projectID", cty.NumberIntVal(int64(v.ProjectID)))
		b.SetAttributeValue("fileID", cty.NumberIntVal(int64(v.FileID)))
	case pack.ModrinthID:
		b := body.AppendNewBlock("modrinth", []string{blockKey}).Body()
		b.SetAttributeValue("projectID", cty.StringVal(v.ProjectID))
		b.SetAttributeValue("versionID", cty.StringVal(v.VersionID))
	}
	log.Info().Str("mod", proj.Name).Stringer("version", id).Msg("adding mod")
	return nil
}

// slugify derives a manifest key from a project display name.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
