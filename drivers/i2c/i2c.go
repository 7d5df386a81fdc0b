// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package i2c implements the packet/ACK exchange over a two-wire bus,
// driven by the AVR TWI peripheral's status-code state machine: every
// bus event (start condition sent, address acknowledged, a data byte
// shifted) raises the same interrupt, and the driver decides what to
// do next purely from the status register. The status codes below are
// the literal TWI status byte values from the original firmware, not
// an abstraction over them, since the whole design of this bus is
// "dispatch on status code."
package i2c

import (
	"github.com/epro-lab/firmware/bitrate"
	"github.com/epro-lab/firmware/hal"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

// TWI status codes, master and slave, transmit and receive.
const (
	statusBusError    = 0x00
	statusMTStart     = 0x08
	statusMTRepStart  = 0x10
	statusMTSLAWAck   = 0x18
	statusMTSLAWNack  = 0x20
	statusMTDataAck   = 0x28
	statusMTDataNack  = 0x30
	statusMTArbLost   = 0x38
	statusMRSLARAck   = 0x40
	statusMRDataAck   = 0x50
	statusMRDataNack  = 0x58
	statusSRSLAWAck   = 0x60
	statusSRDataAck   = 0x80
	statusSRDataNack  = 0x88
	statusSRStop      = 0xa0
	statusSTSLARAck   = 0xa8
	statusSTDataAck   = 0xb8
	statusSTDataNack  = 0xc0
	statusSTLastAck   = 0xc8
)

// slaveAddress is the board's fixed TWI slave address.
const slaveAddress = 0x01

type state int

const (
	stateIdle state = iota
	stateMasterSendFrame
	stateMasterReadAck
	stateSlaveRecvFrame
	stateSlaveSendAck
)

// Driver is a transport.Driver over an I²C bus.
type Driver struct {
	bus hal.TWI
	irq *hal.IRQController
	cpu hal.CPU

	state state

	txFrame *packet.Packet
	txPos   int

	rxDest  *packet.Packet
	rxBuf   [packet.Size]byte
	rxPos   int
	ackIn   byte
	ackOut  byte

	status *transport.Status
}

// New creates an I²C driver over bus.
func New(bus hal.TWI, irq *hal.IRQController, cpu hal.CPU) *Driver {
	bus.SetSlaveAddress(slaveAddress)
	return &Driver{bus: bus, irq: irq, cpu: cpu}
}

// BeginSend writes p to the bus as a master-transmitter, then issues
// a repeated start to read back a single ACK/NACK byte.
func (d *Driver) BeginSend(p *packet.Packet, status *transport.Status) {
	d.status = status
	d.txFrame = p
	d.txPos = 0
	d.state = stateMasterSendFrame

	d.irq.Handle(hal.IRQTWI, d.onEvent)
	d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWSTA)
}

// BeginRead arms the bus as a slave to receive one frame, then
// transmit the ACK/NACK once the master issues the matching read.
func (d *Driver) BeginRead(buf *packet.Packet, status *transport.Status) {
	d.status = status
	d.rxDest = buf
	d.rxPos = 0
	d.state = stateSlaveRecvFrame

	d.irq.Handle(hal.IRQTWI, d.onEvent)
	d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWEA)
}

// SetBitrateHint programs the TWI bitrate generator for hint.
func (d *Driver) SetBitrateHint(hint bitrate.Hint) {
	d.bus.SetBitrate(bitrate.I2CHz(hint))
}

// Abort tears down whatever transfer is in flight.
func (d *Driver) Abort() {
	d.cpu.DisableInterrupts()
	d.bus.Shutdown()
	d.irq.Clear(hal.IRQTWI)
	d.state = stateIdle
	d.cpu.EnableInterrupts()
}

func (d *Driver) onEvent() {
	switch d.state {
	case stateMasterSendFrame:
		d.masterSendFrame()
	case stateMasterReadAck:
		d.masterReadAck()
	case stateSlaveRecvFrame:
		d.slaveRecvFrame()
	case stateSlaveSendAck:
		d.slaveSendAck()
	}
}

func (d *Driver) masterSendFrame() {
	switch d.bus.StatusCode() {
	case statusMTStart, statusMTRepStart:
		d.bus.SetData(slaveAddress << 1) // SLA+W
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT)

	case statusMTSLAWAck:
		d.bus.SetData(d.txFrame.Bytes()[d.txPos])
		d.txPos++
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT)

	case statusMTDataAck:
		if d.txPos < packet.Size {
			d.bus.SetData(d.txFrame.Bytes()[d.txPos])
			d.txPos++
			d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT)
			return
		}

		// Frame fully sent; issue a repeated start to read the ACK byte.
		d.state = stateMasterReadAck
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWSTA)

	case statusMTArbLost:
		// Lost the bus to another master; reissue START and retry
		// transparently within this state, the same as
		// _i2c_packet_tx_isr's MT_ARB_LOST case. done/result are left
		// untouched.
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWSTA)

	case statusMTSLAWNack, statusMTDataNack, statusBusError:
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWSTO)
		d.status.Publish(result.Failed)
	}
}

func (d *Driver) masterReadAck() {
	switch d.bus.StatusCode() {
	case statusMTStart, statusMTRepStart:
		d.bus.SetData(slaveAddress<<1 | 1) // SLA+R
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT)

	case statusMRSLARAck:
		// Single-byte read: NACK the only byte we ask for.
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT)

	case statusMRDataNack, statusMRDataAck:
		ack := d.bus.Data()
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWSTO)
		d.state = stateIdle

		if ack == result.ACK {
			d.status.Publish(result.Success)
		} else {
			d.status.Publish(result.Failed)
		}

	case statusMTArbLost:
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWSTO)
		d.status.Publish(result.Failed)
	}
}

func (d *Driver) slaveRecvFrame() {
	switch d.bus.StatusCode() {
	case statusSRSLAWAck:
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWEA)

	case statusSRDataAck:
		if d.rxPos < packet.Size {
			d.rxBuf[d.rxPos] = d.bus.Data()
			d.rxPos++
		}
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWEA)

	case statusSRStop:
		frame := packet.FromBytes(d.rxBuf[:])
		if frame.Checksum() == packet.ComputeChecksum(frame.Data()) {
			d.rxDest.CopyFrom(frame)
			d.ackOut = result.ACK
		} else {
			d.ackOut = result.NACK
		}
		d.state = stateSlaveSendAck
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWEA)

	case statusSRDataNack:
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWEA)
	}
}

func (d *Driver) slaveSendAck() {
	switch d.bus.StatusCode() {
	case statusSTSLARAck:
		d.bus.SetData(d.ackOut)
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT)

	case statusSTDataNack, statusSTLastAck:
		d.bus.SetControl(1<<hal.TWCR_TWEN | 1<<hal.TWCR_TWIE | 1<<hal.TWCR_TWINT | 1<<hal.TWCR_TWEA)
		d.state = stateIdle

		if d.ackOut == result.ACK {
			d.status.Publish(result.Success)
		} else {
			d.status.Publish(result.Failed)
		}
	}
}
