package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/ambient"
	"github.com/mklimuk/ambient/adapter"
	"github.com/mklimuk/ambient/cmd/ambient/console"
	"github.com/mklimuk/ambient/i2c"
)

var busCmd = cli.Command{
	Name:  "bus",
	Usage: "hardware bus utilities",
	Subcommands: []*cli.Command{
		&busLsCmd,
		&busStatusCmd,
		&busReleaseCmd,
		&busScanCmd,
	},
}

var busLsCmd = cli.Command{
	Name:  "ls",
	Usage: "list attached HID devices",
	Action: func(c *cli.Context) error {
		// List all HID devices
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")

		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()

		if n := len(hid.Enumerate(adapter.VendorID, adapter.ProductID)); n > 0 {
			console.Printf("%d MCP2221 adapter(s) attached\n", n)
		}
		return nil
	},
}

var busStatusCmd = cli.Command{
	Name:  "status",
	Usage: "dump the MCP2221 engine status",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.Status(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		err = enc.Encode(status)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var busReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck MCP2221 transfer",
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.ReleaseBus(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		err = enc.Encode(status)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var busScanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe the bus for responding device addresses",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus provider: mcp2221, periph, nanopi or devfs",
			Value:   "mcp2221",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "bus device for the periph and devfs providers",
			Value:   "/dev/i2c-1",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "bus number for the nanopi provider",
		},
	},
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		bus, closeBus, err := openBus(c)
		if err != nil {
			return console.Exit(1, "bus error: %s", console.Red(err))
		}
		defer closeBus()

		found := 0
		buffer := make([]byte, 1)
		// 0x00-0x02 and 0x78-0x7F are reserved by the protocol.
		for addr := byte(0x03); addr <= 0x77; addr++ {
			if err := bus.ReadFromAddr(ctx, addr, buffer); err != nil {
				continue
			}
			console.Printf("device answering at %#x\n", addr)
			found++
		}
		if found == 0 {
			console.Warn("no devices answered")
		}
		return nil
	},
}

// openBus builds the bus provider selected by the adapter flag. The returned
// cleanup is safe to call once the bus is no longer in use.
func openBus(c *cli.Context) (ambient.I2CBus, func(), error) {
	noop := func() {}
	switch c.String("adapter") {
	case "mcp2221":
		a := adapter.NewMCP2221()
		if err := a.Init(); err != nil {
			return nil, noop, fmt.Errorf("adapter initialization error: %w", err)
		}
		return a, noop, nil
	case "periph":
		bus, err := i2c.NewGenericBus(c.String("device"))
		if err != nil {
			return nil, noop, err
		}
		return bus, func() { _ = bus.Close() }, nil
	case "nanopi":
		bus, err := i2c.NewNanoPiBus(c.Int("bus"))
		if err != nil {
			return nil, noop, err
		}
		return bus, func() { _ = bus.Close() }, nil
	case "devfs":
		bus := i2c.NewDevfsBus(c.String("device"))
		return bus, func() { _ = bus.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown adapter %q", c.String("adapter"))
	}
}
