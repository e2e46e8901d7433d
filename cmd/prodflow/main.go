// Package main provides the prodflow scheduling server and its tooling commands.
package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "prodflow",
		Usage:                 "Schedule production orders through the department pipeline",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewPeriodCommand(),
			NewOrderIDCommand(),
			NewGraphCommand(),
			NewEventsCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("prodflow failed", "error", err)
		os.Exit(1)
	}
}
