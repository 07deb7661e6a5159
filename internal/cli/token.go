package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"github.com/andrewinci/actual-sync/internal/transport/httpapi/middleware"
)

type tokenCmd struct {
	app      *App
	ttl      time.Duration
	operator string
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "mint a bearer token for the serve API" }
func (*tokenCmd) Usage() string {
	return `actual-sync token [-ttl <duration>] [-operator <name>]

  Prints a JWT signed with SERVER_JWT_SECRET.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.ttl, "ttl", 24*time.Hour, "How long the token stays valid.")
	f.StringVar(&c.operator, "operator", "operator", "Subject written in the token.")
}

func (c *tokenCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.app.setup()
	if err != nil {
		return c.app.fail(err)
	}
	defer e.Close()

	if err := e.cfg.ValidateServe(); err != nil {
		return c.app.fail(err)
	}

	token, err := middleware.NewJWTService(e.cfg.ServerJWTSecret).GenerateToken(c.operator, c.ttl)
	if err != nil {
		return c.app.fail(err)
	}

	fmt.Fprintln(c.app.Stdout, token)
	return subcommands.ExitSuccess
}
