// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package coordinator

import (
	"testing"
	"time"

	"github.com/epro-lab/firmware/diag"
	"github.com/epro-lab/firmware/keyscan"
	"github.com/epro-lab/firmware/message"
	"github.com/epro-lab/firmware/packet"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

type fakeSleeper struct {
	calls int
}

func (f *fakeSleeper) Sleep(d time.Duration) { f.calls++ }

// scriptedDriver completes every BeginSend/BeginRead synchronously
// using a caller-supplied per-call outcome script, standing in for
// the asynchronous ISR completion a real bus driver provides.
type scriptedDriver struct {
	sendResults []result.Result
	sendCalls   int

	readPackets []*packet.Packet
	readResults []result.Result
	readCalls   int

	aborts int
}

func (d *scriptedDriver) BeginSend(p *packet.Packet, status *transport.Status) {
	r := d.sendResults[d.sendCalls]
	d.sendCalls++
	status.Publish(r)
}

func (d *scriptedDriver) BeginRead(buf *packet.Packet, status *transport.Status) {
	if d.readPackets[d.readCalls] != nil {
		buf.CopyFrom(d.readPackets[d.readCalls])
	}
	r := d.readResults[d.readCalls]
	d.readCalls++
	status.Publish(r)
}

func (d *scriptedDriver) Abort() { d.aborts++ }

type alwaysClock struct{ ms uint32 }

func (c *alwaysClock) NowMillis() uint32 { c.ms++; return c.ms }

type neverReleased struct{}

func (neverReleased) Poll()                       {}
func (neverReleased) Released(k keyscan.Key) bool { return false }

func newDispatch() *transport.Dispatcher {
	return &transport.Dispatcher{Clock: &alwaysClock{}, Keys: neverReleased{}}
}

func TestSendMessageSucceedsFirstTry(t *testing.T) {
	drv := &scriptedDriver{sendResults: []result.Result{
		result.Success, result.Success, result.Success,
	}}
	sl := &fakeSleeper{}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: sl}

	msg := message.New("HI", nil)
	res := c.SendMessage(msg)

	if res != result.Success {
		t.Fatalf("SendMessage() = %v, want %v", res, result.Success)
	}
	if sl.calls != 0 {
		t.Errorf("sleeper called %d times on an all-success run, want 0", sl.calls)
	}
}

func TestSendRetriesTwiceThenSucceeds(t *testing.T) {
	drv := &scriptedDriver{sendResults: []result.Result{
		result.Failed, result.Failed, result.Success,
	}}
	sl := &fakeSleeper{}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: sl}

	p := packet.New(1, 1, [packet.BlockLength]byte{})
	res := c.sendWithRetry(p)

	if res != result.Success {
		t.Fatalf("sendWithRetry() = %v, want %v", res, result.Success)
	}
	if sl.calls != 2 {
		t.Errorf("sleeper called %d times, want 2", sl.calls)
	}
}

func TestSendExhaustsRetryBudget(t *testing.T) {
	drv := &scriptedDriver{sendResults: []result.Result{
		result.Failed, result.Failed, result.Failed,
	}}
	sl := &fakeSleeper{}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: sl}

	p := packet.New(1, 1, [packet.BlockLength]byte{})
	res := c.sendWithRetry(p)

	if res != result.Failed {
		t.Fatalf("sendWithRetry() = %v, want %v", res, result.Failed)
	}
	if sl.calls != 2 {
		t.Errorf("sleeper called %d times, want 2 (no pause after the final attempt)", sl.calls)
	}
}

func TestSendAbortsImmediatelyWithoutRetry(t *testing.T) {
	drv := &scriptedDriver{sendResults: []result.Result{result.Aborted}}
	sl := &fakeSleeper{}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: sl}

	p := packet.New(1, 1, [packet.BlockLength]byte{})
	res := c.sendWithRetry(p)

	if res != result.Aborted {
		t.Fatalf("sendWithRetry() = %v, want %v", res, result.Aborted)
	}
	if drv.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1 (abort is not retried)", drv.sendCalls)
	}
}

func TestCountersTrackRetriesAndSuccess(t *testing.T) {
	drv := &scriptedDriver{sendResults: []result.Result{
		result.Failed, result.Success,
	}}
	counters := &diag.Counters{}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: &fakeSleeper{}, Counters: counters}

	p := packet.New(1, 1, [packet.BlockLength]byte{})
	res := c.sendWithRetry(p)

	if res != result.Success {
		t.Fatalf("sendWithRetry() = %v, want %v", res, result.Success)
	}
	if got := counters.Retries.Load(); got != 1 {
		t.Errorf("Retries = %d, want 1", got)
	}
	if got := counters.PacketsSent.Load(); got != 1 {
		t.Errorf("PacketsSent = %d, want 1", got)
	}
}

func TestReadMessageFailsImmediatelyOnIndexMismatch(t *testing.T) {
	wrongFirst := packet.New(2, 2, [packet.BlockLength]byte{})
	drv := &scriptedDriver{
		readPackets: []*packet.Packet{wrongFirst},
		readResults: []result.Result{result.Success},
	}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: &fakeSleeper{}}

	got, res := c.ReadMessage()

	if res != result.Failed {
		t.Fatalf("ReadMessage() result = %v, want %v", res, result.Failed)
	}
	if got != nil {
		t.Fatalf("ReadMessage() packet = %v, want nil", got)
	}
	if drv.readCalls != 1 {
		t.Errorf("readCalls = %d, want 1 (an index mismatch is not retried)", drv.readCalls)
	}
}

func TestReadMessageRoundTrip(t *testing.T) {
	msg := message.New("ROUND TRIP TEST", nil)
	pkts := msg.ToPackets()

	results := make([]result.Result, len(pkts))
	for i := range results {
		results[i] = result.Success
	}

	drv := &scriptedDriver{readPackets: pkts, readResults: results}
	c := &Coordinator{Dispatch: newDispatch(), Driver: drv, Sleeper: &fakeSleeper{}}

	got, res := c.ReadMessage()
	if res != result.Success {
		t.Fatalf("ReadMessage() result = %v, want %v", res, result.Success)
	}
	if got.String()[:len("ROUND TRIP TEST")] != "ROUND TRIP TEST" {
		t.Fatalf("String() = %q, want prefix %q", got.String(), "ROUND TRIP TEST")
	}
}
