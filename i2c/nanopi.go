package i2c

import (
	"context"
	"fmt"
	"sync"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/ambient"
)

var _ ambient.I2CBus = &NanoPiBus{}

// NanoPiBus adapts the gobot NanoPi NEO platform to the bus contract.
// Connections are opened lazily, one per device address, and reused.
type NanoPiBus struct {
	mx      sync.Mutex
	adaptor *nanopi.Adaptor
	busNr   int
	conns   map[byte]gi2c.Connection
}

func NewNanoPiBus(busNr int) (*NanoPiBus, error) {
	adaptor := nanopi.NewNeoAdaptor()
	// connect the I2C subsystem only, the GPIO part stays untouched
	err := adaptor.I2cBusAdaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	return &NanoPiBus{
		adaptor: adaptor,
		busNr:   busNr,
		conns:   make(map[byte]gi2c.Connection),
	}, nil
}

func (b *NanoPiBus) connection(address byte) (gi2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.adaptor.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %#x on bus %d: %w", address, b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *NanoPiBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Read(buffer)
	if err != nil {
		return fmt.Errorf("could not read from %#x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short read from %#x: %d", address, n)
	}
	return nil
}

func (b *NanoPiBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	n, err := conn.Write(buffer)
	if err != nil {
		return fmt.Errorf("could not write to %#x: %w", address, err)
	}
	if n != len(buffer) {
		return fmt.Errorf("short write to %#x: %d", address, n)
	}
	return nil
}

func (b *NanoPiBus) Release(ctx context.Context) error {
	return nil
}

func (b *NanoPiBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	for addr, conn := range b.conns {
		err := conn.Close()
		if err != nil {
			return fmt.Errorf("could not close connection to %#x: %w", addr, err)
		}
	}
	b.conns = make(map[byte]gi2c.Connection)
	return b.adaptor.I2cBusAdaptor.Finalize()
}
