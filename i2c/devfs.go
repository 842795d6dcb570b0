package i2c

import (
	"context"
	"fmt"
	"sync"

	xi2c "golang.org/x/exp/io/i2c"

	"github.com/mklimuk/ambient"
)

var _ ambient.I2CBus = &DevfsBus{}

// DevfsBus talks to /dev/i2c-* directly, keeping one file handle per
// device address, opened on first use.
type DevfsBus struct {
	mx      sync.Mutex
	dev     string
	devices map[byte]*xi2c.Device
}

func NewDevfsBus(dev string) *DevfsBus {
	return &DevfsBus{
		dev:     dev,
		devices: make(map[byte]*xi2c.Device),
	}
}

func (b *DevfsBus) device(address byte) (*xi2c.Device, error) {
	if dev, ok := b.devices[address]; ok {
		return dev, nil
	}
	dev, err := xi2c.Open(&xi2c.Devfs{Dev: b.dev}, int(address))
	if err != nil {
		return nil, fmt.Errorf("could not open %s for address %#x: %w", b.dev, address, err)
	}
	b.devices[address] = dev
	return dev, nil
}

func (b *DevfsBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	err = dev.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#x: %w", address, err)
	}
	return nil
}

func (b *DevfsBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	err = dev.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %#x: %w", address, err)
	}
	return nil
}

func (b *DevfsBus) Release(ctx context.Context) error {
	return nil
}

func (b *DevfsBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	for addr, dev := range b.devices {
		err := dev.Close()
		if err != nil {
			return fmt.Errorf("could not close device %#x: %w", addr, err)
		}
	}
	b.devices = make(map[byte]*xi2c.Device)
	return nil
}
