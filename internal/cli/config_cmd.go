package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/pkg/config"
)

// configCmd is a container for sync file commands
type configCmd struct {
	app *App
}

func (*configCmd) Name() string     { return "config" }
func (*configCmd) Synopsis() string { return "manage the sync file" }
func (*configCmd) Usage() string {
	return `config <subcommand> [args]

Commands:
  create - Write an empty sync file.
`
}

func (c *configCmd) SetFlags(f *flag.FlagSet) {}
func (c *configCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	commander := subcommands.NewCommander(f, "config")
	commander.Register(&configCreateCmd{app: c.app}, "")
	return commander.Execute(ctx, args...)
}

type configCreateCmd struct {
	app   *App
	force bool
	path  string
}

func (*configCreateCmd) Name() string     { return "create" }
func (*configCreateCmd) Synopsis() string { return "write an empty sync file" }
func (*configCreateCmd) Usage() string {
	return `config create [-force] [-path <file>]

  Writes a sync file with empty TrueLayer, Trading212 and map sections.
  An existing file is kept unless -force is given.
`
}

func (c *configCreateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "Overwrite an existing sync file.")
	f.StringVar(&c.path, "path", config.SyncFilePath(), "Where to write the sync file.")
}

func (c *configCreateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := config.WriteSyncFile(c.path, config.DefaultSyncFile(), c.force); err != nil {
		if !c.force {
			return c.app.fail(fmt.Errorf("%w (use -force to overwrite)", err))
		}
		return c.app.fail(err)
	}

	fmt.Fprintf(c.app.Stdout, "Sync file written to %s\n", c.path)
	return subcommands.ExitSuccess
}
