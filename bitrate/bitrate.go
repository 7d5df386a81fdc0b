// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bitrate maps the operator-facing bitrate hint to the
// concrete line rate each transport programs into its controller.
// The four hints reproduce the original I²C bitrate table's four
// entries; RS-232, IrDA and SPI reuse the same hint space so a single
// control maps across every interface.
package bitrate

// Hint is a coarse, interface-independent speed selector.
type Hint int

const (
	SlowRegular Hint = iota
	SlowAberrant
	FastRegular
	FastAberrant
)

func (h Hint) String() string {
	switch h {
	case SlowRegular:
		return "slow/regular"
	case SlowAberrant:
		return "slow/aberrant"
	case FastRegular:
		return "fast/regular"
	case FastAberrant:
		return "fast/aberrant"
	default:
		return "unknown"
	}
}

// I2CHz is the two-wire bus clock, in Hz, for hint, grounded on the
// original firmware's bitrate table.
func I2CHz(h Hint) uint32 {
	switch h {
	case SlowRegular:
		return 10000
	case SlowAberrant:
		return 12345
	case FastRegular:
		return 100000
	case FastAberrant:
		return 123456
	default:
		return 10000
	}
}

// RS232Baud is the asynchronous serial line rate, in bits per second,
// for hint.
func RS232Baud(h Hint) uint32 {
	switch h {
	case SlowRegular:
		return 9600
	case SlowAberrant:
		return 10417
	case FastRegular:
		return 115200
	case FastAberrant:
		return 125000
	default:
		return 9600
	}
}

// IrDABaud is the line rate the MCP2120 endec is commanded to run at
// for hint; the endec only supports the two rates it has fixed
// command bytes for; aberrant hints fall back to the nearest regular
// rate.
func IrDABaud(h Hint) uint32 {
	switch h {
	case SlowRegular, SlowAberrant:
		return 9600
	case FastRegular, FastAberrant:
		return 115200
	default:
		return 9600
	}
}

// SPIHz is the synchronous serial clock, in Hz, for hint.
func SPIHz(h Hint) uint32 {
	switch h {
	case SlowRegular:
		return 125000
	case SlowAberrant:
		return 142857
	case FastRegular:
		return 1000000
	case FastAberrant:
		return 1142857
	default:
		return 125000
	}
}
