// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rs232 specializes drivers/uartcore for direct RS-232
// wiring: no endec sequencing is required, so the only board-specific
// behavior is programming the USART's baud rate from a bitrate.Hint.
package rs232

import (
	"github.com/epro-lab/firmware/bitrate"
	"github.com/epro-lab/firmware/drivers/uartcore"
	"github.com/epro-lab/firmware/hal"
)

// Driver is an RS-232 transport.Driver.
type Driver struct {
	*uartcore.Driver
	usart hal.USART
}

// New creates an RS-232 driver over usart.
func New(usart hal.USART, irq *hal.IRQController, cpu hal.CPU) *Driver {
	return &Driver{Driver: uartcore.New(usart, irq, cpu), usart: usart}
}

// SetBitrateHint programs the USART baud-rate generator for hint.
func (d *Driver) SetBitrateHint(hint bitrate.Hint) {
	d.usart.SetBaudDivisor(bitrate.RS232Baud(hint))
}
