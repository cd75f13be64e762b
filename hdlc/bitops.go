package hdlc

import "github.com/sigurn/crc16"

// Address is the only HDLC address used on a fax line.
const Address byte = 0xff

// Control field values.
const (
	ControlNonFinal byte = 0x03
	ControlFinal    byte = 0x13
)

var (
	fcsTable = crc16.MakeTable(crc16.CRC16_X_25)
	revTable [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		var r byte
		for b := 0; b < 8; b++ {
			if i&(1<<b) != 0 {
				r |= 0x80 >> b
			}
		}
		revTable[i] = r
	}
}

// Reverse returns b with its bit order reversed.
func Reverse(b byte) byte {
	return revTable[b]
}

// ReverseBytes reverses the bit order of every byte in p, in place.
func ReverseBytes(p []byte) {
	for i, b := range p {
		p[i] = revTable[b]
	}
}

// FCS computes the frame check sequence over wire-order bytes.
func FCS(p []byte) uint16 {
	return crc16.Checksum(p, fcsTable)
}
