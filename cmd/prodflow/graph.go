package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dukex/prodflow/pkg/departments"
	cli "github.com/urfave/cli/v3"
)

func NewGraphCommand() *cli.Command {
	return &cli.Command{
		Name:  "graph",
		Usage: "Inspect department graph definitions",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Aliases:   []string{"v"},
				Usage:     "Validate a YAML department graph and print its stages and edges",
				ArgsUsage: "[file]",
				Action: func(ctx context.Context, command *cli.Command) error {
					graph, err := loadGraph(command.Args().First())
					if err != nil {
						return err
					}

					return printGraph(command.Root().Writer, graph)
				},
			},
		},
	}
}

func printGraph(w io.Writer, graph *departments.Graph) error {
	for _, stage := range graph.Stages() {
		terminal := ""
		if graph.IsTerminal(stage.ID) {
			terminal = " (terminal)"
		}

		_, err := fmt.Fprintf(w, "%d. %s%s\n", stage.ID, stage.Name, terminal)
		if err != nil {
			return err
		}

		for _, edge := range graph.Edges(stage.ID) {
			line := fmt.Sprintf("     %-7s -> %s", edge.Kind, graph.Name(edge.To))
			if when := edge.When.String(); when != "" {
				line += " when " + when
			}

			_, err = fmt.Fprintln(w, line)
			if err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintf(w, "OK: %d stages\n", graph.Len())

	return err
}
