// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package eprolab is the board-level facade: the single type an
// application links against to select an interface, set its bitrate,
// scan keys, and transfer messages, without naming any of the
// per-bus driver packages itself. Every other board/ directory this
// module started from follows the same shape, one facade type wiring
// concrete SoC/peripheral drivers behind a small fixed surface.
package eprolab

import (
	"github.com/epro-lab/firmware/bitrate"
	"github.com/epro-lab/firmware/coordinator"
	"github.com/epro-lab/firmware/keyscan"
	"github.com/epro-lab/firmware/message"
	"github.com/epro-lab/firmware/result"
	"github.com/epro-lab/firmware/transport"
)

// Interface identifies which bus a message is transferred over.
type Interface int

const (
	RS232 Interface = iota
	IrDA
	SPI
	I2C
)

// Bitrated is implemented by drivers that can reprogram their line
// rate from a bitrate.Hint.
type Bitrated interface {
	SetBitrateHint(hint bitrate.Hint)
}

// Board wires the per-bus drivers, one shared Dispatcher and one
// Scanner for the key matrix into the small surface an application
// actually calls:
// pick an interface, optionally set its bitrate, send or read a
// message, and poll keys.
type Board struct {
	drivers  map[Interface]transport.Driver
	dispatch *transport.Dispatcher
	keys     *keyscan.Scanner

	active Interface
}

// New creates a board given its per-interface drivers and key
// scanner. drivers need not contain an entry for every Interface; an
// absent driver makes SelectInterface report false for that value.
func New(drivers map[Interface]transport.Driver, dispatch *transport.Dispatcher, keys *keyscan.Scanner) *Board {
	return &Board{drivers: drivers, dispatch: dispatch, keys: keys}
}

// SelectInterface makes iface the target of subsequent
// SendMessage/ReadMessage calls. It reports false if no driver is
// wired for iface.
func (b *Board) SelectInterface(iface Interface) bool {
	if _, ok := b.drivers[iface]; !ok {
		return false
	}
	b.active = iface
	return true
}

// SetBitrateHint reprograms the currently selected interface's line
// rate, if that driver supports it.
func (b *Board) SetBitrateHint(hint bitrate.Hint) bool {
	drv, ok := b.drivers[b.active]
	if !ok {
		return false
	}
	br, ok := drv.(Bitrated)
	if !ok {
		return false
	}
	br.SetBitrateHint(hint)
	return true
}

// SendMessage fragments and transmits msg over the selected
// interface.
func (b *Board) SendMessage(msg *message.Message) result.Result {
	drv, ok := b.drivers[b.active]
	if !ok {
		return result.Error
	}
	return coordinator.New(b.dispatch, drv).SendMessage(msg)
}

// ReadMessage receives and reassembles one message from the selected
// interface.
func (b *Board) ReadMessage() (*message.Message, result.Result) {
	drv, ok := b.drivers[b.active]
	if !ok {
		return nil, result.Error
	}
	return coordinator.New(b.dispatch, drv).ReadMessage()
}

// PollKeys refreshes the key scanner's debounced state. The
// transport.Dispatcher driving SendMessage/ReadMessage already calls
// this every busy-wait iteration through transport.KeySource; an
// application calls it directly only to refresh key state while idle
// (e.g. while a menu is open and no transfer is in flight).
func (b *Board) PollKeys() {
	b.keys.Poll()
}

// Pressed reports whether k is currently held.
func (b *Board) Pressed(k keyscan.Key) bool {
	return b.keys.Pressed(k)
}

// Released reports an edge-triggered key release.
func (b *Board) Released(k keyscan.Key) bool {
	return b.keys.Released(k)
}
