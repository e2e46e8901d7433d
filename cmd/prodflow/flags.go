package main

import (
	"fmt"

	"github.com/dukex/prodflow/pkg/departments"
	"github.com/dukex/prodflow/pkg/periodclock"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort  = 9092
	defaultEpoch = "2025-07-01"
)

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Value:   "info",
		Sources: cli.EnvVars("LOG_LEVEL"),
	}
}

func clockFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "epoch",
			Usage:   "First day of period 0 (YYYY-MM-DD)",
			Value:   defaultEpoch,
			Sources: cli.EnvVars("PRODFLOW_EPOCH"),
		},
		&cli.IntFlag{
			Name:    "period-length-days",
			Usage:   "Length of a scheduling period in days",
			Value:   periodclock.DefaultPeriodLengthDays,
			Sources: cli.EnvVars("PRODFLOW_PERIOD_LENGTH_DAYS"),
		},
		&cli.StringFlag{
			Name:    "negative-periods",
			Usage:   "Handling of dates before the epoch (reject, allow, clamp)",
			Value:   string(periodclock.NegativeReject),
			Sources: cli.EnvVars("PRODFLOW_NEGATIVE_PERIODS"),
		},
	}
}

func departmentsFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "departments-file",
		Usage:   "YAML department graph; the built-in pipeline is used when empty",
		Sources: cli.EnvVars("PRODFLOW_DEPARTMENTS_FILE"),
	}
}

func newClock(command *cli.Command) (*periodclock.Clock, error) {
	epoch, err := periodclock.ParseDate(command.String("epoch"))
	if err != nil {
		return nil, fmt.Errorf("invalid epoch: %w", err)
	}

	negative, err := periodclock.ParseNegativePolicy(command.String("negative-periods"))
	if err != nil {
		return nil, err
	}

	return periodclock.New(periodclock.Config{
		Epoch:            epoch,
		PeriodLengthDays: command.Int("period-length-days"),
		Negative:         negative,
	})
}

func loadGraph(path string) (*departments.Graph, error) {
	if path == "" {
		return departments.Default(), nil
	}

	graph, err := departments.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load departments from %s: %w", path, err)
	}

	return graph, nil
}
