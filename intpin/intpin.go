// Package intpin observes the sensor's interrupt line on a Raspberry Pi
// GPIO pin. The line is open-drain and active low: the device pulls it down
// when an interrupt latches and releases it on clear, so the watcher
// configures the pin with a pull-up and looks for falling edges.
package intpin

import (
	"context"
	"fmt"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// DefaultPollInterval is how often the edge-detect latch is sampled. Edges
// latch in hardware between samples, so short pulses are not missed.
const DefaultPollInterval = 50 * time.Millisecond

type Opts struct {
	PollInterval time.Duration
}

type Opt func(*Opts)

func WithPollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = interval
	}
}

// Watcher owns one GPIO pin configured for falling-edge detection.
type Watcher struct {
	pin      rpio.Pin
	interval time.Duration
}

// Open memory-maps the GPIO register block and configures the pin as a
// pulled-up input with falling-edge detection. Requires access to
// /dev/gpiomem, so it only works on the Pi itself.
func Open(pin int, opts ...Opt) (*Watcher, error) {
	config := Opts{PollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(&config)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("intpin: gpio open failed: %w", err)
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Input)
	p.Pull(rpio.PullUp)
	p.Detect(rpio.FallEdge)
	return &Watcher{pin: p, interval: config.PollInterval}, nil
}

// Asserted reports whether the line is currently held low.
func (w *Watcher) Asserted() bool {
	return w.pin.Read() == rpio.Low
}

// Watch emits the observation time of every falling edge until ctx is done.
// The returned channel is closed when the loop exits.
func (w *Watcher) Watch(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !w.pin.EdgeDetected() {
					continue
				}
				select {
				case out <- time.Now():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close disables edge detection and unmaps the register block.
func (w *Watcher) Close() error {
	w.pin.Detect(rpio.NoEdge)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("intpin: gpio close failed: %w", err)
	}
	return nil
}
