package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ambient/cmd/ambient/console"
	"github.com/mklimuk/ambient/intpin"
)

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "poll continuously, reporting readings and latched interrupts",
	Flags: append(append([]cli.Flag{
		&cli.IntFlag{
			Name:  "int-pin",
			Usage: "GPIO pin wired to the sensor interrupt line (Raspberry Pi only)",
			Value: -1,
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
			console.Printf("Interrupt Threshold Window: %d to %d (persist %s)\n",
				window.Low, window.High, console.White(window.Persist))
		}
		if pin := c.Int("int-pin"); pin >= 0 {
			watcher, err := intpin.Open(pin)
			if err != nil {
				return console.Exit(1, "interrupt pin error: %s", console.Red(err))
			}
			defer func() {
				_ = watcher.Close()
			}()
			go func() {
				for at := range watcher.Watch(ctx) {
					console.PInfof(console.PictoPin, "interrupt line asserted at %s", at.Format(time.TimeOnly))
				}
			}()
		}

		for sample := range session.Watch(ctx) {
			if sample.Err != nil {
				console.Errorf("read cycle failed: %s", console.Red(sample.Err))
				continue
			}
			console.Printf("IR: %d  Full: %d  Visible: %d  Lux: %.4f\n",
				sample.Reading.Infrared, sample.Reading.FullSpectrum,
				sample.Reading.Visible, sample.Reading.Lux)
			if sample.Status.Raised() {
				console.PInfof(console.PictoBell, "interrupt latched: %s (status cleared)", console.White(sample.Status))
			}
		}
		return nil
	},
}
