// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package spi implements the packet/ACK exchange over a full-duplex
// synchronous bus: the sender always drives the bus as master, the
// receiver always responds as slave, so every transfer is initiated
// by whichever side is sending. After the 16-byte frame leg, the
// master waits a short dead time (for the slave to verify the
// checksum and load its response register) before clocking one more
// byte to retrieve the ACK/NACK, grounded on spi.c's packet+ACK
// timing.
package spi

import (
	"github.com/epro-lab/firmware/bitrate"
	"github.com/epro-lab/firmware/drivers/fsm"
	"github.com/epro-lab/firmware/hal"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

// deadTimeMicros is the gap between the frame and ACK legs of a
// transfer, giving the slave time to verify the checksum and load its
// response byte.
const deadTimeMicros = 200

type role int

const (
	roleIdle role = iota
	roleMasterSendFrame
	roleMasterReadAck
	roleSlaveRecvFrame
	roleSlaveSendAck
)

// Driver is a transport.Driver over a full-duplex SPI bus.
type Driver struct {
	bus   hal.SPIBus
	irq   *hal.IRQController
	cpu   hal.CPU
	clock hal.Clock

	role role

	txFrame *packet.Packet
	txPos   int

	rx     fsm.PacketBuffer
	rxDest *packet.Packet
	ackOut byte

	status *transport.Status
}

// New creates an SPI driver over bus.
func New(bus hal.SPIBus, irq *hal.IRQController, cpu hal.CPU, clock hal.Clock) *Driver {
	return &Driver{bus: bus, irq: irq, cpu: cpu, clock: clock}
}

// BeginSend arms the bus as master, shifts out p, then clocks a
// single extra byte after the dead time to read back the ACK/NACK.
func (d *Driver) BeginSend(p *packet.Packet, status *transport.Status) {
	d.status = status
	d.txFrame = p
	d.txPos = 0
	d.role = roleMasterSendFrame

	d.bus.InitMaster()
	d.irq.Handle(hal.IRQSPITransferComplete, d.onMasterTransferComplete)
	d.bus.EnableInterrupt()
	d.bus.WriteByte(p.Bytes()[0])
}

// BeginRead arms the bus as slave to receive one frame into buf and
// answer with ACK/NACK.
func (d *Driver) BeginRead(buf *packet.Packet, status *transport.Status) {
	d.status = status
	d.rxDest = buf
	d.rx.Reset()
	d.role = roleSlaveRecvFrame

	d.bus.InitSlave()
	d.irq.Handle(hal.IRQSPITransferComplete, d.onSlaveTransferComplete)
	d.bus.EnableInterrupt()
}

// SetBitrateHint programs the bus clock for hint, taking effect on
// the next transfer.
func (d *Driver) SetBitrateHint(hint bitrate.Hint) {
	d.bus.SetBitrate(bitrate.SPIHz(hint))
}

// Abort tears down whatever transfer is in flight.
func (d *Driver) Abort() {
	d.cpu.DisableInterrupts()
	d.bus.DisableInterrupt()
	d.bus.Shutdown()
	d.irq.Clear(hal.IRQSPITransferComplete)
	d.role = roleIdle
	d.cpu.EnableInterrupts()
}

func (d *Driver) onMasterTransferComplete() {
	switch d.role {
	case roleMasterSendFrame:
		d.txPos++
		if d.txPos < packet.Size {
			d.bus.WriteByte(d.txFrame.Bytes()[d.txPos])
			return
		}

		d.role = roleMasterReadAck
		d.clock.DelayMicroseconds(deadTimeMicros)
		d.bus.WriteByte(0) // dummy clock byte, the slave's ACK/NACK rides back on it

	case roleMasterReadAck:
		ack := d.bus.ReadByte()
		d.bus.DisableInterrupt()
		d.irq.Clear(hal.IRQSPITransferComplete)
		d.role = roleIdle

		if ack == result.ACK {
			d.status.Publish(result.Success)
		} else {
			d.status.Publish(result.Failed)
		}
	}
}

func (d *Driver) onSlaveTransferComplete() {
	switch d.role {
	case roleSlaveRecvFrame:
		b := d.bus.ReadByte()
		if !d.rx.PutByte(b) {
			return
		}

		p := d.rx.Packet()
		if p.Checksum() == packet.ComputeChecksum(p.Data()) {
			d.rxDest.CopyFrom(p)
			d.ackOut = result.ACK
		} else {
			d.ackOut = result.NACK
		}

		d.role = roleSlaveSendAck
		d.bus.WriteByte(d.ackOut)

	case roleSlaveSendAck:
		d.bus.DisableInterrupt()
		d.irq.Clear(hal.IRQSPITransferComplete)
		d.role = roleIdle

		if d.ackOut == result.ACK {
			d.status.Publish(result.Success)
		} else {
			d.status.Publish(result.Failed)
		}
	}
}
