// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package irda specializes drivers/uartcore for a Microchip MCP2120
// infrared endec sitting between the USART and the IR transceiver.
// The endec is programmed over the same USART lines it later carries
// packet traffic on, by toggling its MODE pin and writing baud-rate
// command bytes, grounded on irda.c's reset/command sequencing.
package irda

import (
	"github.com/epro-lab/firmware/bitrate"
	"github.com/epro-lab/firmware/drivers/uartcore"
	"github.com/epro-lab/firmware/hal"
)

// MCP2120 command bytes and timing, named after the datasheet values
// the original firmware hard-codes.
const (
	cmd9600Baud   = 0x87
	cmd115200Baud = 0x81
	cmdChangeRate = 0x11

	modeSettleMicros = 100
	resetPulseMicros = 18000
)

// Driver is an IrDA transport.Driver.
type Driver struct {
	*uartcore.Driver
	usart hal.USART
	pins  hal.Pins
	clock hal.Clock
	mode  hal.Pin
	reset hal.Pin
}

// New creates an IrDA driver. mode and reset identify the MCP2120's
// MODE and RESET control lines on pins.
func New(usart hal.USART, irq *hal.IRQController, cpu hal.CPU, pins hal.Pins, clock hal.Clock, mode, reset hal.Pin) *Driver {
	d := &Driver{
		Driver: uartcore.New(usart, irq, cpu),
		usart:  usart,
		pins:   pins,
		clock:  clock,
		mode:   mode,
		reset:  reset,
	}
	d.pins.SetOutput(mode)
	d.pins.SetOutput(reset)
	return d
}

// SetBitrateHint resets the endec and commands it into the line rate
// matching hint. IrDA only supports two physical rates; aberrant
// hints select the nearest regular rate (see package bitrate).
func (d *Driver) SetBitrateHint(hint bitrate.Hint) {
	d.resetEndec()

	d.pins.Set(d.mode)
	d.clock.DelayMicroseconds(modeSettleMicros)

	d.usart.WriteByte(cmdChangeRate)
	if bitrate.IrDABaud(hint) == 115200 {
		d.usart.WriteByte(cmd115200Baud)
	} else {
		d.usart.WriteByte(cmd9600Baud)
	}

	d.pins.Clear(d.mode)
	d.usart.SetBaudDivisor(bitrate.IrDABaud(hint))
}

func (d *Driver) resetEndec() {
	d.pins.Clear(d.reset)
	d.clock.DelayMicroseconds(resetPulseMicros)
	d.pins.Set(d.reset)
}
