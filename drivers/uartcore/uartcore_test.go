// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uartcore

import (
	"testing"

	"github.com/epro-lab/firmware/hal"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

type fakeUSART struct {
	written    []byte
	nextRead   byte
	txEnabled  bool
	rxEnabled  bool
	baud       uint32
	resetCalls int
}

func (f *fakeUSART) EnableTx()              { f.txEnabled = true }
func (f *fakeUSART) DisableTx()             { f.txEnabled = false }
func (f *fakeUSART) EnableRx()              { f.rxEnabled = true }
func (f *fakeUSART) DisableRx()             { f.rxEnabled = false }
func (f *fakeUSART) WriteByte(b byte)       { f.written = append(f.written, b) }
func (f *fakeUSART) ReadByte() byte         { return f.nextRead }
func (f *fakeUSART) SetBaudDivisor(b uint32) { f.baud = b }
func (f *fakeUSART) Reset()                 { f.resetCalls++ }

type fakeCPU struct{}

func (fakeCPU) DisableInterrupts() {}
func (fakeCPU) EnableInterrupts()  {}

func TestSendDrainsFrameThenAwaitsACK(t *testing.T) {
	usart := &fakeUSART{}
	irq := &hal.IRQController{}
	d := New(usart, irq, fakeCPU{})

	var status transport.Status
	p := packet.New(1, 1, [packet.BlockLength]byte{1, 2, 3, 4, 5, 6, 7, 8})
	d.BeginSend(p, &status)

	for i := 0; i < packet.Size; i++ {
		irq.Dispatch(hal.IRQUSARTDataEmpty)
	}

	if len(usart.written) != packet.Size {
		t.Fatalf("wrote %d bytes, want %d", len(usart.written), packet.Size)
	}
	for i, b := range usart.written {
		if b != p.Bytes()[i] {
			t.Fatalf("written[%d] = %#x, want %#x", i, b, p.Bytes()[i])
		}
	}
	if !usart.rxEnabled {
		t.Fatalf("Rx not enabled after frame transmitted")
	}

	usart.nextRead = result.ACK
	irq.Dispatch(hal.IRQUSARTRxComplete)

	if !status.Done() {
		t.Fatalf("status not published after ACK received")
	}
	if got := status.Result(); got != result.Success {
		t.Fatalf("Result() = %v, want %v", got, result.Success)
	}
}

func TestSendReportsFailedOnNACK(t *testing.T) {
	usart := &fakeUSART{}
	irq := &hal.IRQController{}
	d := New(usart, irq, fakeCPU{})

	var status transport.Status
	p := packet.New(1, 1, [packet.BlockLength]byte{})
	d.BeginSend(p, &status)

	for i := 0; i < packet.Size; i++ {
		irq.Dispatch(hal.IRQUSARTDataEmpty)
	}

	usart.nextRead = result.NACK
	irq.Dispatch(hal.IRQUSARTRxComplete)

	if got := status.Result(); got != result.Failed {
		t.Fatalf("Result() = %v, want %v", got, result.Failed)
	}
}

func TestReadAcceptsValidFrameAndSendsACK(t *testing.T) {
	usart := &fakeUSART{}
	irq := &hal.IRQController{}
	d := New(usart, irq, fakeCPU{})

	src := packet.New(2, 2, [packet.BlockLength]byte{9, 8, 7, 6, 5, 4, 3, 2})

	var status transport.Status
	var dst packet.Packet
	d.BeginRead(&dst, &status)

	for _, b := range src.Bytes() {
		usart.nextRead = b
		irq.Dispatch(hal.IRQUSARTRxComplete)
	}

	if len(usart.written) != 1 || usart.written[0] != result.ACK {
		t.Fatalf("written = %v, want single ACK byte", usart.written)
	}

	irq.Dispatch(hal.IRQUSARTDataEmpty)

	if !status.Done() || status.Result() != result.Success {
		t.Fatalf("status = done=%v result=%v, want done=true result=Success", status.Done(), status.Result())
	}
	if dst != *src {
		t.Fatalf("received packet = %v, want %v", dst, src)
	}
}

func TestReadRejectsBadChecksumWithNACK(t *testing.T) {
	usart := &fakeUSART{}
	irq := &hal.IRQController{}
	d := New(usart, irq, fakeCPU{})

	src := packet.New(2, 2, [packet.BlockLength]byte{9, 8, 7, 6, 5, 4, 3, 2})
	corrupted := *src
	corrupted[15] ^= 0xff // flip the checksum byte

	var status transport.Status
	var dst packet.Packet
	d.BeginRead(&dst, &status)

	for _, b := range corrupted.Bytes() {
		usart.nextRead = b
		irq.Dispatch(hal.IRQUSARTRxComplete)
	}

	if len(usart.written) != 1 || usart.written[0] != result.NACK {
		t.Fatalf("written = %v, want single NACK byte", usart.written)
	}

	irq.Dispatch(hal.IRQUSARTDataEmpty)

	if status.Result() != result.Failed {
		t.Fatalf("Result() = %v, want %v", status.Result(), result.Failed)
	}
}

func TestAbortDisablesBothDirections(t *testing.T) {
	usart := &fakeUSART{}
	irq := &hal.IRQController{}
	d := New(usart, irq, fakeCPU{})

	var status transport.Status
	p := packet.New(1, 1, [packet.BlockLength]byte{})
	d.BeginSend(p, &status)

	d.Abort()

	if usart.txEnabled || usart.rxEnabled {
		t.Fatalf("Abort left a direction enabled: tx=%v rx=%v", usart.txEnabled, usart.rxEnabled)
	}
}
