package ambient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLuminosity(t *testing.T) {
	tests := []struct {
		name     string
		combined uint32
		wantIR   uint16
		wantFull uint16
	}{
		{name: "zero", combined: 0, wantIR: 0, wantFull: 0},
		{name: "full only", combined: 0x0000_0400, wantIR: 0, wantFull: 1024},
		{name: "ir only", combined: 0x00C8_0000, wantIR: 200, wantFull: 0},
		{name: "both channels", combined: 0x03E8_01F4, wantIR: 1000, wantFull: 500},
		{name: "saturated", combined: 0xFFFF_FFFF, wantIR: 0xFFFF, wantFull: 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ir, full := SplitLuminosity(tt.combined)
			assert.Equal(t, tt.wantIR, ir)
			assert.Equal(t, tt.wantFull, full)
		})
	}
}

func TestStatusFlags(t *testing.T) {
	tests := []struct {
		flags      StatusFlags
		als        bool
		noPersist  bool
		wantString string
	}{
		{flags: 0, als: false, noPersist: false, wantString: "none"},
		{flags: StatusALSInterrupt, als: true, noPersist: false, wantString: "als"},
		{flags: StatusNoPersistInterrupt, als: false, noPersist: true, wantString: "no-persist"},
		{flags: StatusALSInterrupt | StatusNoPersistInterrupt, als: true, noPersist: true, wantString: "als|no-persist"},
	}

	for _, tt := range tests {
		t.Run(tt.wantString, func(t *testing.T) {
			assert.Equal(t, tt.als, tt.flags.ALSInterrupt())
			assert.Equal(t, tt.noPersist, tt.flags.NoPersistInterrupt())
			assert.Equal(t, tt.als || tt.noPersist, tt.flags.Raised())
			assert.Equal(t, tt.wantString, tt.flags.String())
		})
	}
}
