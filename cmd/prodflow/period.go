package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/prodflow/pkg/periodclock"
	cli "github.com/urfave/cli/v3"
)

var ErrDateRequired = errors.New("a date argument (YYYY-MM-DD) is required")

func NewPeriodCommand() *cli.Command {
	return &cli.Command{
		Name:      "period",
		Usage:     "Print the scheduling period containing a date",
		ArgsUsage: "<date>",
		Flags:     clockFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			clock, date, err := clockAndDate(command)
			if err != nil {
				return err
			}

			period, err := clock.PeriodOf(date)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(period, "", "  ")
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(command.Root().Writer, string(out))

			return err
		},
	}
}

func NewOrderIDCommand() *cli.Command {
	return &cli.Command{
		Name:      "order-id",
		Usage:     "Print the next period-coded order id after last-id",
		ArgsUsage: "<date> [last-id]",
		Flags:     clockFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			clock, date, err := clockAndDate(command)
			if err != nil {
				return err
			}

			id, err := clock.NextOrderID(date, command.Args().Get(1))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(command.Root().Writer, id)

			return err
		},
	}
}

func clockAndDate(command *cli.Command) (*periodclock.Clock, periodclock.Date, error) {
	if command.Args().Len() == 0 {
		return nil, periodclock.Date{}, ErrDateRequired
	}

	date, err := periodclock.ParseDate(command.Args().First())
	if err != nil {
		return nil, periodclock.Date{}, err
	}

	clock, err := newClock(command)
	if err != nil {
		return nil, periodclock.Date{}, err
	}

	return clock, date, nil
}
