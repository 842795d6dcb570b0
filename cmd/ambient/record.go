package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ambient/cmd/ambient/console"
	"github.com/mklimuk/ambient/meter"
	"github.com/mklimuk/ambient/store"
)

var recordCmd = cli.Command{
	Name:  "record",
	Usage: "record readings into the sqlite log",
	Flags: append(append([]cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "sqlite file the readings land in",
		},
		&cli.DurationFlag{
			Name:    "duration",
			Aliases: []string{"d"},
			Usage:   "how long to record (at most 8h when not set)",
		},
		&cli.BoolFlag{
			Name:  "reset",
			Usage: "drop previously recorded readings first",
		},
	}, sessionFlags...), interruptFlags...),
	Action: func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = console.SetVerbose(ctx, c.Bool("verbose"))

		config, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		dbPath := config.Store.Path
		if c.IsSet("db") {
			dbPath = c.String("db")
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return console.Exit(1, "store error: %s", console.Red(err))
		}
		defer func() {
			_ = st.Close()
		}()
		if c.Bool("reset") {
			sure, err := console.YesOrNo("drop all recorded readings?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if sure {
				removed, err := st.Purge(ctx)
				if err != nil {
					return console.Exit(1, "store error: %s", console.Red(err))
				}
				console.PInfof(console.PictoDisk, "dropped %d recorded readings", removed)
			}
		}

		session, err := openSession(ctx, c, config)
		if err != nil {
			return console.Exit(1, "session error: %s", console.Red(err))
		}
		window, err := interruptConfig(c, config)
		if err != nil {
			return console.Exit(1, "interrupt window error: %s", console.Red(err))
		}
		if window != nil {
			if err = session.ConfigureInterrupt(ctx, *window); err != nil {
				return console.Exit(1, "interrupt window error: %s", console.Red(err))
			}
		}

		m := meter.New(session, st)
		jobID, err := m.Start(ctx, c.Duration("duration"))
		if err != nil {
			return console.Exit(1, "recording error: %s", console.Red(err))
		}
		console.PInfof(console.PictoDisk, "recording job %s into %s", console.White(jobID), dbPath)

		finished := make(chan struct{})
		go func() {
			m.Wait()
			close(finished)
		}()
		select {
		case <-ctx.Done():
			console.Print("stopping recording")
			if err = m.Stop(); err != nil {
				return console.Exit(1, "stop error: %s", console.Red(err))
			}
		case <-finished:
		}

		summary, err := m.Summarize(context.Background(), jobID)
		if errors.Is(err, store.ErrNoReadings) {
			console.Warn("no samples recorded")
			return nil
		}
		if err != nil {
			return console.Exit(1, "summary error: %s", console.Red(err))
		}
		console.PInfof(console.PictoChart, "%d samples, average %.1f lux, peak %.1f lux",
			summary.Samples, summary.AverageLux, summary.PeakLux)
		console.PInfof(console.PictoSun, "conditions: %s", console.White(summary.Condition))
		return nil
	},
}
