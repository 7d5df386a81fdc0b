// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sim provides an in-memory peer simulator: a full-duplex
// serial link between two hal.USART endpoints, paced to the
// configured baud rate with golang.org/x/time/rate, so driver and
// coordinator tests can exercise real transfer timing (retry
// back-off, the 1-second send timeout) without real hardware or a
// real serial cable.
package sim

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/epro-lab/firmware/hal"
)

// USARTLink is a loopback pair of hal.USART endpoints connected by two
// byte queues, one per direction. Each endpoint paces its own
// transmissions to its configured baud rate and raises the peer's
// receive-complete interrupt once a byte lands.
type USARTLink struct {
	a, b *usartEnd
}

// NewUSARTLink creates a connected pair. irqA/irqB are the interrupt
// controllers the two ends' drivers register handlers against.
func NewUSARTLink(irqA, irqB *hal.IRQController) *USARTLink {
	aToB := make(chan byte, 1)
	bToA := make(chan byte, 1)

	l := &USARTLink{}
	l.a = &usartEnd{out: aToB, in: bToA, irq: irqA, limiter: rate.NewLimiter(rate.Inf, 1)}
	l.b = &usartEnd{out: bToA, in: aToB, irq: irqB, limiter: rate.NewLimiter(rate.Inf, 1)}
	l.a.peer = l.b
	l.b.peer = l.a

	l.a.startReceiver()
	l.b.startReceiver()

	return l
}

// A returns the link's first endpoint.
func (l *USARTLink) A() hal.USART { return l.a }

// B returns the link's second endpoint.
func (l *USARTLink) B() hal.USART { return l.b }

type usartEnd struct {
	out, in chan byte
	irq     *hal.IRQController
	peer    *usartEnd
	limiter *rate.Limiter

	lastRx byte

	txEnabled bool
	rxEnabled bool
}

func (e *usartEnd) EnableTx()  { e.txEnabled = true }
func (e *usartEnd) DisableTx() { e.txEnabled = false }
func (e *usartEnd) EnableRx()  { e.rxEnabled = true }
func (e *usartEnd) DisableRx() { e.rxEnabled = false }
func (e *usartEnd) ReadByte() byte { return e.lastRx }
func (e *usartEnd) Reset()     { e.lastRx = 0 }

// SetBaudDivisor reconfigures the pacing limiter to one byte per the
// 10-bit-per-byte 8N1 frame time at baud.
func (e *usartEnd) SetBaudDivisor(baud uint32) {
	if baud == 0 {
		e.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	bytesPerSecond := float64(baud) / 10
	e.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), 1)
}

// WriteByte blocks until the configured baud rate's pacing permits
// the byte, then delivers it to the peer's input queue. Real hardware
// returns immediately and raises a data-register-empty interrupt
// later; here WriteByte itself fires the local data-empty interrupt,
// in the caller's goroutine, once the byte is queued.
func (e *usartEnd) WriteByte(b byte) {
	_ = e.limiter.Wait(context.Background())
	e.out <- b
	if e.txEnabled {
		e.irq.Dispatch(hal.IRQUSARTDataEmpty)
	}
}

// startReceiver runs for the lifetime of the link, delivering
// incoming bytes and raising the receive-complete interrupt whenever
// the endpoint has Rx enabled.
func (e *usartEnd) startReceiver() {
	go func() {
		for b := range e.in {
			e.lastRx = b
			if e.rxEnabled {
				e.irq.Dispatch(hal.IRQUSARTRxComplete)
			}
		}
	}()
}

// SimulatedFrameDelay is a per-byte time bound for tests that need to
// limit how long a simulated exchange should take: about ten times the
// 8N1 byte time (roughly 1.04 ms) at 9600 baud, the slowest line rate
// any bitrate hint selects.
const SimulatedFrameDelay = 10 * time.Millisecond
