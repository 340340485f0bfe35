package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"github.com/packsmith/packsmith/logging"
)

const programName = "packsmith"

// countFlag counts flag repetitions, so -v -v means debug.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(string) error {
	*c++
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

func main() {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.Bool("h", false, "alias for help")
	fs.Bool("help", false, "print usage")
	var verbosity countFlag
	fs.Var(&verbosity, "v", "increase log verbosity (repeatable)")

	cdr := subcommands.NewCommander(fs, programName)
	cdr.Register(&AddCommand{}, "")
	cdr.Register(&BuildCommand{}, "")
	cdr.Register(&CleanCommand{}, "")
	cdr.Register(&FormatCommand{}, "")
	cdr.Register(&MigrateCommand{}, "")
	cdr.Register(cdr.HelpCommand(), "help")
	cdr.Register(cdr.FlagsCommand(), "help")
	cdr.Register(cdr.CommandsCommand(), "help")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.Setup(int(verbosity))

	ctx := context.Background()
	switch cdr.Execute(ctx) {
	case subcommands.ExitFailure:
		os.Exit(1)
	case subcommands.ExitUsageError:
		os.Exit(2)
	}
}
