// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package keyscan implements the key matrix reader: edge-detected
// "was down, now up" release semantics, and the two debounce
// strategies the original board's revisions used interchangeably a
// software 10-sample debounce run from a 1 kHz tick on revisions
// below 9, and a direct hardware-debounced port read on revision 9
// and later.
package keyscan

import "sync/atomic"

// Key identifies one key matrix bit. The bit position for a given key
// varies by board revision in the original firmware; this port
// collapses that into a single canonical mapping (see DESIGN.md).
type Key uint8

const (
	KeyUp Key = 1 << iota
	KeyDown
	KeyLeft
	KeyRight
	KeyBack
	KeyOK
)

// debounceSamples is the number of consecutive identical raw readings
// the software debouncer requires before accepting a transition.
const debounceSamples = 10

// Scanner tracks the current and previous debounced key state and
// reports edge-triggered releases. current/old are written only from
// the foreground Poll step, matching poll_keys()'s exclusive ownership
// of current_key_state/old_key_state in the original firmware;
// whichever debounce strategy is wired only ever commits into the
// ISR-owned debounced word, never into current/old directly.
type Scanner struct {
	current atomic.Uint32 // holds a uint8 key mask, foreground-owned
	old     atomic.Uint32 // foreground-owned

	debounced atomic.Uint32 // ISR-owned; latched into current by Poll

	port KeyPort // non-nil only for a hardware-debounced scanner

	// software debounce state, touched only from the debounce tick.
	candidate uint8
	run       int
}

// NewSoftware creates a scanner whose debounced state is produced by
// repeatedly sampling raw from a 1 kHz tick until debounceSamples
// consecutive identical readings are seen. Poll must still be called
// once per foreground pass to latch that state into current/old.
func NewSoftware(source DebounceSource) *Scanner {
	s := &Scanner{}
	source.StartTick(s.sample)
	return s
}

// NewHardware creates a scanner that re-reads port directly on every
// Poll, for board revisions with hardware key debounce.
func NewHardware(port KeyPort) *Scanner {
	s := &Scanner{port: port}
	s.Poll()
	return s
}

// DebounceSource abstracts the 1 kHz tick driving software debounce.
type DebounceSource interface {
	StartTick(onTick func(raw uint8))
	StopTick()
}

// KeyPort abstracts a directly-readable, already hardware-debounced
// key matrix port.
type KeyPort interface {
	Read() uint8
}

// Poll is the foreground latch step, the Go analogue of poll_keys():
// for a hardware-debounced scanner it first re-reads the port, then
// commits old = current; current = debounced. Call it once per
// foreground pass, including once per transport.Dispatcher busy-wait
// iteration.
func (s *Scanner) Poll() {
	if s.port != nil {
		s.debounced.Store(uint32(s.port.Read()))
	}
	s.old.Store(s.current.Load())
	s.current.Store(s.debounced.Load())
}

// sample is invoked on every 1 kHz debounce tick with the current raw
// (possibly bouncing) port reading. It only ever updates the
// ISR-owned debounced word; it never touches current/old itself.
func (s *Scanner) sample(raw uint8) {
	if raw == s.candidate {
		s.run++
	} else {
		s.candidate = raw
		s.run = 1
	}

	if s.run >= debounceSamples {
		s.debounced.Store(uint32(raw))
	}
}

// Pressed reports whether k is currently held down in the
// most-recently-debounced state.
func (s *Scanner) Pressed(k Key) bool {
	return uint8(s.current.Load())&uint8(k) != 0
}

// Released reports an edge-triggered key release: k was down in the
// previous debounced sample and is up now. This mirrors
// epro_is_key_pressed's "was_down && !is_down" test, named for what it
// detects rather than the original function's name.
func (s *Scanner) Released(k Key) bool {
	wasDown := uint8(s.old.Load())&uint8(k) != 0
	isDown := uint8(s.current.Load())&uint8(k) != 0
	return wasDown && !isDown
}
