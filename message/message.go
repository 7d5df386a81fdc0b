// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package message implements fragmentation and reassembly of a text
// string plus an 8-byte XOR key into the fixed-size packets defined
// by package packet.
package message

import "github.com/epro-lab/firmware/packet"

// KeyLength is the width of the XOR cipher key, matching the message
// block size.
const KeyLength = packet.BlockLength

// Header precedes a message's data blocks and occupies the first two
// packets of a fragmented message.
type Header struct {
	BlockCount uint16
	Key        [KeyLength]byte
}

// Message is a header plus an ordered sequence of 8-byte blocks, each
// already enciphered against the header's key.
type Message struct {
	Header Header
	Blocks [][packet.BlockLength]byte
}

// New builds a message carrying s, enciphered against key. A nil key
// is treated as the all-zero "no cipher" key.
//
// Unlike the firmware this module is derived from, the source string
// is zero-padded to a block boundary before ciphering: the original's
// last block read whatever memory happened to follow the caller's
// buffer, which is undefined behavior this port does not reproduce
// (see DESIGN.md).
func New(s string, key *[KeyLength]byte) *Message {
	var k [KeyLength]byte
	if key != nil {
		k = *key
	}

	blockCount := (len(s) + packet.BlockLength - 1) / packet.BlockLength

	padded := make([]byte, blockCount*packet.BlockLength)
	copy(padded, s)

	blocks := make([][packet.BlockLength]byte, blockCount)
	for i := 0; i < blockCount; i++ {
		var b [packet.BlockLength]byte
		copy(b[:], padded[i*packet.BlockLength:(i+1)*packet.BlockLength])
		blocks[i] = cipher(b, k)
	}

	return &Message{
		Header: Header{
			BlockCount: uint16(blockCount),
			Key:        k,
		},
		Blocks: blocks,
	}
}

// String deciphers and concatenates the message's blocks back into a
// string. Trailing bytes past the caller's intended length are not
// trimmed, the same "caller treats trailing junk as pad" contract the
// specification documents for to_string.
func (m *Message) String() string {
	out := make([]byte, 0, len(m.Blocks)*packet.BlockLength)
	for _, b := range m.Blocks {
		deciphered := cipher(b, m.Header.Key)
		out = append(out, deciphered[:]...)
	}
	return string(out)
}

// ToPackets fragments m into block_count+2 packets: packet 1 carries
// the first half of the header (the block count), packet 2 the second
// half (the key), and packets 3..n one message block each.
func (m *Message) ToPackets() []*packet.Packet {
	n := int(m.Header.BlockCount) + 2
	pkts := make([]*packet.Packet, n)

	var headerBuf [2 * KeyLength]byte
	putBlockCount(headerBuf[0:KeyLength], m.Header.BlockCount)
	copy(headerBuf[KeyLength:2*KeyLength], m.Header.Key[:])

	var half0, half1 [packet.BlockLength]byte
	copy(half0[:], headerBuf[0:KeyLength])
	copy(half1[:], headerBuf[KeyLength:2*KeyLength])

	pkts[0] = packet.New(1, uint8(n), half0)
	pkts[1] = packet.New(2, uint8(n), half1)

	for i, b := range m.Blocks {
		pkts[i+2] = packet.New(uint8(i+3), uint8(n), b)
	}

	return pkts
}

// FromPackets reconstructs a message from n packets, inverting
// ToPackets. It fails silently (returning nil, false) if fewer than 2
// packets are supplied or if the header's declared block count does
// not match n-2, mirroring message_from_packets.
func FromPackets(pkts []*packet.Packet) (*Message, bool) {
	if len(pkts) < 2 {
		return nil, false
	}

	var headerBuf [2 * KeyLength]byte
	half0, half1 := pkts[0].Data(), pkts[1].Data()
	copy(headerBuf[0:KeyLength], half0[:])
	copy(headerBuf[KeyLength:2*KeyLength], half1[:])

	blockCount := parseBlockCount(headerBuf[0:KeyLength])
	if int(blockCount) != len(pkts)-2 {
		return nil, false
	}

	var key [KeyLength]byte
	copy(key[:], headerBuf[KeyLength:2*KeyLength])

	blocks := make([][packet.BlockLength]byte, blockCount)
	for i := 0; i < int(blockCount); i++ {
		blocks[i] = pkts[i+2].Data()
	}

	return &Message{
		Header: Header{BlockCount: blockCount, Key: key},
		Blocks: blocks,
	}, true
}

func cipher(block, key [packet.BlockLength]byte) [packet.BlockLength]byte {
	var out [packet.BlockLength]byte
	for i := range block {
		out[i] = block[i] ^ key[i]
	}
	return out
}

// putBlockCount writes count as ASCII decimal digits, zero-padded on
// the right, matching the wire format documented in §3.
func putBlockCount(field []byte, count uint16) {
	for i := range field {
		field[i] = 0
	}

	digits := []byte{}
	v := count
	if v == 0 {
		digits = []byte{'0'}
	}
	for v > 0 {
		digits = append([]byte{'0' + byte(v%10)}, digits...)
		v /= 10
	}

	copy(field, digits)
}

// parseBlockCount reads leading ASCII digits, ignoring any trailing
// non-digit bytes (including the zero padding putBlockCount writes).
func parseBlockCount(field []byte) uint16 {
	var v uint16
	for _, b := range field {
		if b < '0' || b > '9' {
			break
		}
		v = v*10 + uint16(b-'0')
	}
	return v
}
