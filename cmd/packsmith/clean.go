package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"
)

type CleanCommand struct {
}

func (*CleanCommand) Name() string     { return "clean" }
func (*CleanCommand) Synopsis() string { return "remove cached metadata and artifacts" }
func (*CleanCommand) Usage() string {
	return `Usage: packsmith clean

	Removes the metadata cache and the artifact store. Both are
	rebuilt on demand by the next build.
`
}

func (cmd *CleanCommand) SetFlags(f *flag.FlagSet) {
}

func (cmd *CleanCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	path := cacheDir()
	if err := os.RemoveAll(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("removing cache failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
