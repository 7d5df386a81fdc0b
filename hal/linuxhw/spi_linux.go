// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build linux

package linuxhw

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl layout, grounded on Daedaluz-goserial's spi package:
// Linux's spidev exposes a single transfer ioctl carrying a small
// fixed struct of buffer pointers and transfer parameters. x/sys/unix
// does not export spidev's request numbers, so they are encoded here
// the same way the kernel's _IOW macro does.
const spiIOCMagic = 'k'

type spiIOCTransfer struct {
	txBuf uint64
	rxBuf uint64

	length  uint32
	speedHz uint32

	delayUsecs    uint16
	bitsPerWord   uint8
	csChange      uint8
	txNBits       uint8
	rxNBits       uint8
	wordDelayUsec uint8
	pad           uint8
}

var (
	spiIOCWRMode32      = iowR(spiIOCMagic, 5, 4)
	spiIOCWRBitsPerWord = iowR(spiIOCMagic, 3, 1)
	spiIOCMessage       = iowR(spiIOCMagic, 0, uint(unsafe.Sizeof(spiIOCTransfer{})))
)

func iowR(magic byte, nr, size uint) uintptr {
	const iocWrite = 1
	return uintptr(iocWrite<<30 | size<<16 | uint(magic)<<8 | nr)
}

func ioctl(fd int, req, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}

// SPI is a hal.SPIBus backed by a Linux /dev/spidevX.Y node. Like
// Serial, it has no hardware transfer-complete interrupt; the
// transfer-complete callback fires synchronously once the ioctl
// returns.
type SPI struct {
	fd int

	mu       sync.Mutex
	speedHz  uint32
	received []byte

	onComplete func()
}

// OpenSPI opens path (e.g. "/dev/spidev0.0") in 8-bit, mode-0
// configuration.
func OpenSPI(path string) (*SPI, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	var mode uint32
	var bits uint8 = 8
	if err := ioctl(fd, spiIOCWRMode32, uintptr(unsafe.Pointer(&mode))); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := ioctl(fd, spiIOCWRBitsPerWord, uintptr(unsafe.Pointer(&bits))); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &SPI{fd: fd, speedHz: 1000000}, nil
}

// OnTransferComplete registers the callback invoked once a
// WriteByte/ReadByte pair completes a full-duplex exchange.
func (s *SPI) OnTransferComplete(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

func (s *SPI) InitMaster()       {}
func (s *SPI) InitSlave()        {}
func (s *SPI) EnableInterrupt()  {}
func (s *SPI) DisableInterrupt() {}
func (s *SPI) Shutdown()         {}

// SetBitrate programs the clock rate used by subsequent transfers.
func (s *SPI) SetBitrate(hz uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speedHz = hz
}

// WriteByte performs one full-duplex byte exchange immediately: real
// spidev has no concept of shifting a single byte out independently
// of reading one in, so WriteByte both transmits b and captures the
// byte shifted back, then fires the transfer-complete callback.
func (s *SPI) WriteByte(b byte) {
	tx := [1]byte{b}
	rx := [1]byte{}

	s.mu.Lock()
	speed := s.speedHz
	s.mu.Unlock()

	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      1,
		speedHz:     speed,
		bitsPerWord: 8,
	}
	ioctl(s.fd, spiIOCMessage, uintptr(unsafe.Pointer(&xfer)))

	s.mu.Lock()
	s.received = append(s.received, rx[0])
	cb := s.onComplete
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// ReadByte returns the most recently shifted-in byte.
func (s *SPI) ReadByte() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return 0
	}
	return s.received[len(s.received)-1]
}

// Close releases the device node.
func (s *SPI) Close() error {
	return unix.Close(s.fd)
}
