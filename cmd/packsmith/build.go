package main

import (
	"context"
	"flag"
	"net/http"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/packsmith/packsmith/builder"
	"github.com/packsmith/packsmith/builder/curse"
	"github.com/packsmith/packsmith/builder/modrinth"
	"github.com/packsmith/packsmith/builder/server"
	"github.com/packsmith/packsmith/fetcher"
	"github.com/packsmith/packsmith/overrides"
	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/resolve"
)

type BuildCommand struct {
	CurseDir     string
	MrpackDir    string
	ServerDir    string
	DisableCache bool
	Jobs         int
}

func (*BuildCommand) Name() string     { return "build" }
func (*BuildCommand) Synopsis() string { return "resolve a pack and build its outputs" }
func (*BuildCommand) Usage() string {
	return `Usage: packsmith build [-curse dir] [-mrpack dir] [-server dir] [-nocache] [-jobs n] [source]

	Loads the pack manifest from the source directory (default "."),
	resolves the full dependency closure and builds the selected
	outputs. With no output flags the pack is only validated: metadata
	is resolved and checked, nothing is downloaded or written.

Flags:
`
}

func (cmd *BuildCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.CurseDir, "curse", "", "write a CurseForge pack zip into this directory")
	f.StringVar(&cmd.MrpackDir, "mrpack", "", "write a Modrinth pack into this directory")
	f.StringVar(&cmd.ServerDir, "server", "", "build a server directory at this path")
	f.BoolVar(&cmd.DisableCache, "nocache", false, "disable the metadata and artifact caches")
	f.IntVar(&cmd.Jobs, "jobs", fetcher.DefaultJobs, "maximum concurrent downloads")
}

func (cmd *BuildCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		log.Error().Msg("expected at most one source directory")
		return subcommands.ExitUsageError
	}
	source := "."
	if f.NArg() == 1 {
		source = f.Arg(0)
	}

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

	hc := &http.Client{}
	r := &resolve.Resolver{Clients: newClients(gc, hc, db)}
	p, err := r.Resolve(ctx, cfg)
	if err != nil {
		log.Error().Msgf("resolution failed:\n%v", err)
		return subcommands.ExitFailure
	}
	log.Info().Int("mods", len(p.Mods())).Msg("pack resolved")

	builders := cmd.builders(hc)
	if len(builders) == 0 {
		log.Info().Msg("no outputs requested, validation only")
		return subcommands.ExitSuccess
	}

	ov, err := overrides.Load(osfs.New(source))
	if err != nil {
		log.Error().Err(err).Msg("loading override trees failed")
		return subcommands.ExitFailure
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, b := range builders {
		b := b
		g.Go(func() error { return b.Build(ctx, p, ov) })
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("build failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (cmd *BuildCommand) builders(hc *http.Client) []builder.Builder {
	var store billy.Filesystem
	if cmd.DisableCache {
		store = memfs.New()
	} else {
		store = osfs.New(filepath.Join(cacheDir(), "store"))
	}
	dl := &fetcher.Fetcher{
		Files:  store,
		Client: hc,
		Jobs:   int64(cmd.Jobs),
	}

	var bs []builder.Builder
	if cmd.CurseDir != "" {
		bs = append(bs, &curse.Builder{Fetcher: dl, Dir: cmd.CurseDir})
	}
	if cmd.MrpackDir != "" {
		bs = append(bs, &modrinth.Builder{Fetcher: dl, Dir: cmd.MrpackDir})
	}
	if cmd.ServerDir != "" {
		bs = append(bs, &server.Builder{Fetcher: dl, Dir: cmd.ServerDir})
	}
	return bs
}
