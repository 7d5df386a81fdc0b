// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package coordinator drives a whole message through a bus driver,
// one packet at a time: up to 3 attempts per packet with a short
// pause between retries on send, and index-sequence verification on
// read. This generalizes epro_send_message/epro_read_message across
// every bus, since the retry budget and pacing are identical
// regardless of which transport.Driver is underneath.
package coordinator

import (
	"time"

	"github.com/epro-lab/firmware/diag"
	"github.com/epro-lab/firmware/message"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

// MaxAttempts is the number of attempts made at a single packet
// (the first try plus up to two retries) before the whole message
// transfer is abandoned.
const MaxAttempts = 3

// RetryPause is the delay between a failed attempt and the next
// retry, giving the peer time to settle before resynchronizing.
const RetryPause = 2 * time.Millisecond

// Sleeper abstracts the retry pause so tests can run without a real
// delay.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Coordinator sends and receives whole messages over a single
// transport.Dispatcher/Driver pair.
type Coordinator struct {
	Dispatch *transport.Dispatcher
	Driver   transport.Driver
	Sleeper  Sleeper

	// Counters, if non-nil, is updated with retry/timeout/abort
	// statistics as a message is transferred, for the optional
	// diagnostics endpoint (package diag) to report live.
	Counters *diag.Counters
}

// New creates a coordinator with a real time.Sleep-backed pause.
func New(dispatch *transport.Dispatcher, driver transport.Driver) *Coordinator {
	return &Coordinator{Dispatch: dispatch, Driver: driver, Sleeper: realSleeper{}}
}

// SendMessage transmits every packet of msg in order, making up to
// MaxAttempts attempts at each. It stops at the first packet that is
// aborted or times out, or that exhausts its retry budget.
func (c *Coordinator) SendMessage(msg *message.Message) result.Result {
	for _, p := range msg.ToPackets() {
		if res := c.sendWithRetry(p); res != result.Success {
			return res
		}
	}
	return result.Success
}

func (c *Coordinator) sendWithRetry(p *packet.Packet) result.Result {
	var last result.Result

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		last = c.Dispatch.SendPacket(c.Driver, p)

		switch last {
		case result.Success:
			if c.Counters != nil {
				c.Counters.PacketsSent.Add(1)
			}
			return result.Success
		case result.Aborted:
			if c.Counters != nil {
				c.Counters.Aborts.Add(1)
			}
			return last
		case result.Timeout:
			if c.Counters != nil {
				c.Counters.Timeouts.Add(1)
			}
			return last
		}

		if attempt < MaxAttempts-1 {
			if c.Counters != nil {
				c.Counters.Retries.Add(1)
			}
			c.Sleeper.Sleep(RetryPause)
		}
	}

	return last
}

// ReadMessage receives a whole message: the two header packets
// followed by as many data blocks as the header declares, making up
// to MaxAttempts attempts at each packet and verifying that each
// packet's declared index matches its expected position in the
// sequence.
func (c *Coordinator) ReadMessage() (*message.Message, result.Result) {
	first, res := c.readIndexedWithRetry(1)
	if res != result.Success {
		return nil, res
	}

	second, res := c.readIndexedWithRetry(2)
	if res != result.Success {
		return nil, res
	}

	pkts := []*packet.Packet{first, second}

	total := int(first.Total())
	for idx := 3; idx <= total; idx++ {
		p, res := c.readIndexedWithRetry(idx)
		if res != result.Success {
			return nil, res
		}
		pkts = append(pkts, p)
	}

	msg, ok := message.FromPackets(pkts)
	if !ok {
		return nil, result.Error
	}

	return msg, result.Success
}

// readIndexedWithRetry reads one packet, making up to MaxAttempts
// attempts while reads fail. An index mismatch (the peer resent
// an earlier packet, or a packet was dropped and the sequence
// slipped) is not retried: it reports Failed and stops immediately,
// matching epro_read_message's handling of the same condition.
func (c *Coordinator) readIndexedWithRetry(wantIndex int) (*packet.Packet, result.Result) {
	var last result.Result

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		var buf packet.Packet
		last = c.Dispatch.ReadPacket(c.Driver, &buf)

		if last == result.Aborted {
			return nil, result.Aborted
		}

		if last == result.Success {
			if int(buf.Index()) != wantIndex {
				return nil, result.Failed
			}
			if c.Counters != nil {
				c.Counters.PacketsReceived.Add(1)
			}
			return &buf, result.Success
		}

		last = result.Failed

		if attempt < MaxAttempts-1 {
			c.Sleeper.Sleep(RetryPause)
		}
	}

	return nil, last
}
