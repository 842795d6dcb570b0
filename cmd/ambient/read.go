package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/ambient/cmd/ambient/console"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Usage:   "take a single reading",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{
			Name:  "details",
			Usage: "dump the reading as yaml",
		},
	}, sessionFlags...),
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		config, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		session, err := openSession(ctx, c, config)
		if err != nil {
			return console.Exit(1, "session error: %s", console.Red(err))
		}
		console.Print("------------------------------------")
		console.Printf("ID:     %#x\n", session.ID())
		console.Printf("Gain:   %s\n", console.White(session.Gain()))
		console.Printf("Timing: %s\n", console.White(session.Timing()))
		console.Print("------------------------------------")
		reading, err := session.Poll(ctx)
		if err != nil {
			return console.Exit(1, "error getting light sensor read: %s", console.Red(err))
		}
		if c.Bool("details") {
			enc := yaml.NewEncoder(os.Stdout)
			if err = enc.Encode(reading); err != nil {
				return console.Exit(1, "encoding error: %s", console.Red(err))
			}
			return nil
		}
		console.Printf("IR: %d  Full: %d  Visible: %d  Lux: %.4f\n",
			reading.Infrared, reading.FullSpectrum, reading.Visible, reading.Lux)
		return nil
	},
}
