// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package uartcore implements the asynchronous-serial packet/ACK
// state machine shared by RS-232 and IrDA (packages drivers/rs232 and
// drivers/irda): transmit a 16-byte frame then wait for a one-byte
// ACK/NACK, or receive a frame then transmit the ACK/NACK, driven
// entirely from USART interrupt handlers. This is a direct
// generalization of uart.c's _uart_mode_t state machine; the five
// original modes map onto the five mode constants below.
package uartcore

import (
	"github.com/epro-lab/firmware/drivers/fsm"
	"github.com/epro-lab/firmware/hal"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

type mode int

const (
	modeIdle mode = iota
	modePacketTX
	modeACKRX
	modePacketRX
	modeACKTX
)

// Driver drives one USART controller through a single packet send or
// receive cycle at a time. It implements transport.Driver.
type Driver struct {
	usart hal.USART
	irq   *hal.IRQController
	cpu   hal.CPU

	mode mode

	txFrame *packet.Packet
	txPos   int

	rx     fsm.PacketBuffer
	rxDest *packet.Packet
	ackOut byte

	status *transport.Status
}

// New creates a driver bound to the given USART controller and
// interrupt vector table. cpu is used only to bracket the brief
// mode/teardown mutation Abort performs against a concurrently
// running interrupt handler.
func New(usart hal.USART, irq *hal.IRQController, cpu hal.CPU) *Driver {
	return &Driver{usart: usart, irq: irq, cpu: cpu}
}

// BeginSend arms the driver to transmit p and then wait for a single
// ACK/NACK byte.
func (d *Driver) BeginSend(p *packet.Packet, status *transport.Status) {
	d.status = status
	d.txFrame = p
	d.txPos = 0
	d.mode = modePacketTX

	d.irq.Handle(hal.IRQUSARTDataEmpty, d.onDataEmpty)
	d.usart.EnableTx()
}

// BeginRead arms the driver to receive one frame into buf, verify its
// checksum, and transmit the corresponding ACK/NACK.
func (d *Driver) BeginRead(buf *packet.Packet, status *transport.Status) {
	d.status = status
	d.rxDest = buf
	d.rx.Reset()
	d.mode = modePacketRX

	d.irq.Handle(hal.IRQUSARTRxComplete, d.onRxComplete)
	d.usart.EnableRx()
}

// Abort tears down whatever transfer is in flight, leaving the
// controller idle.
func (d *Driver) Abort() {
	d.cpu.DisableInterrupts()
	d.usart.DisableTx()
	d.usart.DisableRx()
	d.irq.Clear(hal.IRQUSARTDataEmpty)
	d.irq.Clear(hal.IRQUSARTRxComplete)
	d.mode = modeIdle
	d.cpu.EnableInterrupts()
}

// onDataEmpty is the data-register-empty interrupt handler: it drives
// the transmit leg of both a send (PACKET_TX) and a read's reply
// (ACK_TX).
func (d *Driver) onDataEmpty() {
	switch d.mode {
	case modePacketTX:
		d.usart.WriteByte(d.txFrame.Bytes()[d.txPos])
		d.txPos++
		if d.txPos < packet.Size {
			return
		}

		d.usart.DisableTx()
		d.mode = modeACKRX
		d.irq.Clear(hal.IRQUSARTDataEmpty)
		d.irq.Handle(hal.IRQUSARTRxComplete, d.onRxComplete)
		d.usart.EnableRx()

	case modeACKTX:
		// The ACK/NACK byte was loaded when the frame completed; this
		// interrupt confirms it has drained.
		d.usart.DisableTx()
		d.irq.Clear(hal.IRQUSARTDataEmpty)
		d.mode = modeIdle

		if d.ackOut == result.ACK {
			d.status.Publish(result.Success)
		} else {
			d.status.Publish(result.Failed)
		}
	}
}

// onRxComplete is the receive-complete interrupt handler: it drives
// the receive leg of both a read (PACKET_RX) and a send's ACK wait
// (ACK_RX).
func (d *Driver) onRxComplete() {
	switch d.mode {
	case modeACKRX:
		ack := d.usart.ReadByte()
		d.usart.DisableRx()
		d.irq.Clear(hal.IRQUSARTRxComplete)
		d.mode = modeIdle

		if ack == result.ACK {
			d.status.Publish(result.Success)
		} else {
			d.status.Publish(result.Failed)
		}

	case modePacketRX:
		b := d.usart.ReadByte()
		if !d.rx.PutByte(b) {
			return
		}

		d.usart.DisableRx()
		d.irq.Clear(hal.IRQUSARTRxComplete)

		p := d.rx.Packet()
		if p.Checksum() == packet.ComputeChecksum(p.Data()) {
			d.rxDest.CopyFrom(p)
			d.ackOut = result.ACK
		} else {
			d.ackOut = result.NACK
		}

		d.mode = modeACKTX
		d.usart.WriteByte(d.ackOut)
		d.irq.Handle(hal.IRQUSARTDataEmpty, d.onDataEmpty)
		d.usart.EnableTx()
	}
}
