// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build linux

// Package linuxhw backs the hal interfaces with real Linux device
// nodes (/dev/ttyUSBx, /dev/spidevX.Y) via golang.org/x/sys/unix, for
// running the stack against an actual USB-serial or SPI adapter
// during development instead of a microcontroller. It is grounded on
// Daedaluz-goserial's termios and ioctl-based device handling.
package linuxhw

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Serial is a hal.USART backed by a Linux tty device node, configured
// into raw 8N1 mode. Unlike a real USART, there is no hardware
// data-register-empty interrupt to drive the byte-at-a-time protocol;
// WriteByte blocks until the write syscall accepts the byte, and a
// background goroutine raises the receive-complete callback as bytes
// arrive, the same shape package hal/sim's in-memory link uses.
type Serial struct {
	fd int

	mu        sync.Mutex
	txEnabled bool
	rxEnabled bool

	lastRx byte

	onRxComplete func()
	onTxEmpty    func()

	stop chan struct{}
}

// OpenSerial opens path (e.g. "/dev/ttyUSB0") and configures it raw.
func OpenSerial(path string) (*Serial, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}

	s := &Serial{fd: fd, stop: make(chan struct{})}
	if err := s.setRaw(); err != nil {
		unix.Close(fd)
		return nil, err
	}

	go s.receiveLoop()
	return s, nil
}

// OnInterrupts registers the callbacks this Serial invokes in place
// of real USART interrupts. The Linux backend has no vector table, so
// the callbacks are wired here directly; nothing connects them to the
// handlers drivers/uartcore registers on a hal.IRQController.
func (s *Serial) OnInterrupts(onTxEmpty, onRxComplete func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTxEmpty = onTxEmpty
	s.onRxComplete = onRxComplete
}

func (s *Serial) setRaw() error {
	t, err := unix.IoctlGetTermios(s.fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(s.fd, unix.TCSETS, t)
}

// EnableTx/DisableTx/EnableRx/DisableRx toggle whether an
// already-completed transfer is reported to the registered callback;
// there is no hardware mask to program.
func (s *Serial) EnableTx()  { s.mu.Lock(); s.txEnabled = true; s.mu.Unlock() }
func (s *Serial) DisableTx() { s.mu.Lock(); s.txEnabled = false; s.mu.Unlock() }
func (s *Serial) EnableRx()  { s.mu.Lock(); s.rxEnabled = true; s.mu.Unlock() }
func (s *Serial) DisableRx() { s.mu.Lock(); s.rxEnabled = false; s.mu.Unlock() }

// WriteByte writes b to the device and, if Tx is enabled, invokes the
// data-empty callback once the write returns.
func (s *Serial) WriteByte(b byte) {
	buf := [1]byte{b}
	unix.Write(s.fd, buf[:])

	s.mu.Lock()
	enabled, cb := s.txEnabled, s.onTxEmpty
	s.mu.Unlock()

	if enabled && cb != nil {
		cb()
	}
}

// ReadByte returns the most recently received byte.
func (s *Serial) ReadByte() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRx
}

// SetBaudDivisor reprograms the line's baud rate via termios.
func (s *Serial) SetBaudDivisor(baud uint32) {
	t, err := unix.IoctlGetTermios(s.fd, unix.TCGETS)
	if err != nil {
		return
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= unix.BOTHER
	t.Ispeed = baud
	t.Ospeed = baud
	unix.IoctlSetTermios(s.fd, unix.TCSETS2, t)
}

// Reset drains any byte sitting unread in the kernel's receive queue.
func (s *Serial) Reset() {
	unix.IoctlSetInt(s.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// Close stops the receive goroutine and closes the device.
func (s *Serial) Close() error {
	close(s.stop)
	return unix.Close(s.fd)
}

func (s *Serial) receiveLoop() {
	buf := make([]byte, 1)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, err := unix.Read(s.fd, buf)
		if err != nil || n == 0 {
			continue
		}

		s.mu.Lock()
		s.lastRx = buf[0]
		enabled, cb := s.rxEnabled, s.onRxComplete
		s.mu.Unlock()

		if enabled && cb != nil {
			cb()
		}
	}
}
