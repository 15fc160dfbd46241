package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/mediapipe/cmd/mediapipe/commands"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
	"git.home.luguber.info/inful/mediapipe/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("mediapipe"),
		kong.Description("Optimize media referenced by Markdown documents and rewrite them with responsive markup."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := &commands.Global{Ctx: ctx, Logger: cli.Logger(), Out: os.Stdout}
	err := parser.Run(global, cli)
	return ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).Report(err)
}
