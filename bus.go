package ambient

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the two-wire bus handle a session passes to its driver at
// construction time. Implementations only move bytes to and from addresses;
// framing the sensor's transactions is the driver's job.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
