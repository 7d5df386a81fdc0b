// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package transport implements the foreground dispatch loop shared by
// every bus: hand a packet to a driver's background state machine,
// then busy-poll a shared status cell for completion while watching
// for a BACK key release (abort) and, for sends only, a 1-second
// timeout. This mirrors _epro_send_packet/_epro_read_packet in the
// original firmware, generalized across buses via the Driver
// interface instead of being duplicated per transport.
package transport

import (
	"sync/atomic"

	"github.com/epro-lab/firmware/keyscan"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
)

// SendTimeoutMillis is the fixed outbound deadline; reads have no
// timeout and are abort-only, per the specification this dispatcher
// implements.
const SendTimeoutMillis = 1000

// Status is the single-writer, many-reader completion cell a driver's
// interrupt handlers publish into and the foreground loop polls. Done
// is always published last, after Result is set, so a reader that
// observes Done true is guaranteed to see a consistent Result even
// without a lock: the same ordering the original firmware's volatile
// status struct relied on.
type Status struct {
	result atomic.Int32
	done   atomic.Bool
}

// Reset clears the cell for reuse before starting a new transfer.
func (s *Status) Reset() {
	s.done.Store(false)
}

// Publish records r as the outcome and marks the cell done. Called
// from driver interrupt-handler context.
func (s *Status) Publish(r result.Result) {
	s.result.Store(int32(r))
	s.done.Store(true)
}

// Done reports whether Publish has been called since the last Reset.
func (s *Status) Done() bool {
	return s.done.Load()
}

// Result returns the published result. Only valid once Done reports
// true.
func (s *Status) Result() result.Result {
	return result.Result(s.result.Load())
}

// Driver is implemented by each bus's state machine (packages
// drivers/uartcore, drivers/spi and drivers/i2c). BeginSend and
// BeginRead arm the machine and return immediately; completion is
// reported asynchronously via status.Publish. Abort cancels whatever
// transfer is in flight.
type Driver interface {
	BeginSend(p *packet.Packet, status *Status)
	BeginRead(buf *packet.Packet, status *Status)
	Abort()
}

// Clock abstracts elapsed-time measurement for the send timeout. A
// real board backs this with the millisecond timer pool (package
// mstimer); tests use a deterministic fake.
type Clock interface {
	NowMillis() uint32
}

// KeySource reports the BACK key release that aborts an in-progress
// transfer. Poll refreshes the debounced key state once per busy-wait
// iteration, the same foreground cadence epro_send_packet/
// epro_read_packet's own poll_keys() call gives it; a *keyscan.Scanner
// satisfies this directly.
type KeySource interface {
	Poll()
	Released(k keyscan.Key) bool
}

// Dispatcher runs one packet's worth of send or read against a
// Driver, interleaving the abort and timeout checks the original
// firmware's busy-wait loops perform.
type Dispatcher struct {
	Clock Clock
	Keys  KeySource
}

// SendPacket hands p to drv and busy-waits for completion, an abort
// (BACK key release), or SendTimeoutMillis elapsed, whichever comes
// first.
func (d *Dispatcher) SendPacket(drv Driver, p *packet.Packet) result.Result {
	var status Status
	start := d.Clock.NowMillis()
	drv.BeginSend(p, &status)

	for {
		if status.Done() {
			return status.Result()
		}
		d.Keys.Poll()
		if d.Keys.Released(keyscan.KeyBack) {
			drv.Abort()
			return result.Aborted
		}
		if d.Clock.NowMillis()-start >= SendTimeoutMillis {
			drv.Abort()
			return result.Timeout
		}
	}
}

// ReadPacket arms drv to receive one packet into buf and busy-waits
// for completion or an abort. Unlike SendPacket, there is no timeout:
// a read waits indefinitely for an inbound frame, matching the
// specification's asymmetric timeout policy.
func (d *Dispatcher) ReadPacket(drv Driver, buf *packet.Packet) result.Result {
	var status Status
	drv.BeginRead(buf, &status)

	for {
		if status.Done() {
			return status.Result()
		}
		d.Keys.Poll()
		if d.Keys.Released(keyscan.KeyBack) {
			drv.Abort()
			return result.Aborted
		}
	}
}
