package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/ambient"
	"github.com/mklimuk/ambient/sim"
)

// sessionFlags configure the simulated sensor session shared by the read,
// watch, record and serve commands. Values given here override the
// configuration file.
var sessionFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "gain",
		Aliases: []string{"g"},
		Usage:   "amplification: 1x, 25x, 428x or 9876x",
	},
	&cli.StringFlag{
		Name:    "timing",
		Aliases: []string{"t"},
		Usage:   "integration window: 100ms to 600ms in 100ms steps",
	},
	&cli.DurationFlag{
		Name:    "interval",
		Aliases: []string{"i"},
		Usage:   "delay between samples",
	},
	&cli.StringFlag{
		Name:  "profile",
		Usage: "simulated light profile: constant, noisy or daylight",
		Value: "constant",
	},
	&cli.UintFlag{
		Name:  "full",
		Usage: "full-spectrum counts fed to the profile",
		Value: 1024,
	},
	&cli.UintFlag{
		Name:  "ir",
		Usage: "infrared counts of the constant profile",
		Value: 256,
	},
	&cli.UintFlag{
		Name:  "variation",
		Usage: "maximum per-sample deviation of the noisy profile",
		Value: 128,
	},
	&cli.DurationFlag{
		Name:  "period",
		Usage: "day length of the daylight profile",
		Value: 10 * time.Minute,
	},
	&cli.BoolFlag{
		Name:  "realtime",
		Usage: "block each sample for the integration window, like real hardware",
	},
}

// interruptFlags program the window-threshold interrupt. Both thresholds
// apply to the full-spectrum channel.
var interruptFlags = []cli.Flag{
	&cli.UintFlag{
		Name:  "low",
		Usage: "window low threshold in full-spectrum counts",
	},
	&cli.UintFlag{
		Name:  "high",
		Usage: "window high threshold in full-spectrum counts",
	},
	&cli.StringFlag{
		Name:  "persist",
		Usage: "out-of-window samples before the interrupt latches: any, 2, 3, 5, 10 ... 60",
		Value: "any",
	},
}

// loadConfig reads the file behind the global --config flag, falling back to
// defaults when the flag is not set.
func loadConfig(c *cli.Context) (ambient.Config, error) {
	if path := c.String("config"); path != "" {
		return ambient.LoadConfig(path)
	}
	return ambient.DefaultConfig(), nil
}

func buildBehavior(c *cli.Context) (sim.Behavior, error) {
	full := uint16(c.Uint("full"))
	switch c.String("profile") {
	case "constant":
		return sim.Constant(uint16(c.Uint("ir")), full), nil
	case "noisy":
		return sim.Noisy(full, uint16(c.Uint("variation"))), nil
	case "daylight":
		return sim.Daylight(c.Duration("period"), full), nil
	default:
		return nil, fmt.Errorf("unknown profile %q", c.String("profile"))
	}
}

// openSession builds a session over the bundled simulator, performs the
// handshake and applies the sampling configuration. Driving real hardware
// means implementing ambient.Driver against a device library and the bus
// providers shipped in adapter and i2c.
func openSession(ctx context.Context, c *cli.Context, config ambient.Config) (*ambient.Session, error) {
	behavior, err := buildBehavior(c)
	if err != nil {
		return nil, err
	}
	gain := config.Session.Gain
	if c.IsSet("gain") {
		if gain, err = ambient.ParseGain(c.String("gain")); err != nil {
			return nil, err
		}
	}
	timing := config.Session.Timing
	if c.IsSet("timing") {
		if timing, err = ambient.ParseIntegrationTime(c.String("timing")); err != nil {
			return nil, err
		}
	}
	interval := time.Duration(config.Session.Interval)
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	sensor := sim.New(
		sim.WithBehavior(behavior),
		sim.WithIntegrationDelay(c.Bool("realtime")),
	)
	session := ambient.NewSession(sensor, nil, ambient.WithPollInterval(interval))
	if err = session.Open(ctx); err != nil {
		return nil, err
	}
	if err = session.Configure(ctx, gain, timing); err != nil {
		return nil, err
	}
	return session, nil
}

// interruptConfig merges the window flags over the configuration file. A nil
// result means no window is configured anywhere.
func interruptConfig(c *cli.Context, config ambient.Config) (*ambient.InterruptConfig, error) {
	if !c.IsSet("low") && !c.IsSet("high") {
		return config.Interrupt, nil
	}
	if !c.IsSet("low") || !c.IsSet("high") {
		return nil, fmt.Errorf("the interrupt window needs both --low and --high")
	}
	persist, err := ambient.ParsePersistence(c.String("persist"))
	if err != nil {
		return nil, err
	}
	cfg := &ambient.InterruptConfig{
		Low:     uint16(c.Uint("low")),
		High:    uint16(c.Uint("high")),
		Persist: persist,
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
