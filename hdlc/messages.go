package hdlc

import (
	"fmt"
	"strings"

	"gofaxmodem/t30"
)

// IDLen is the length of the CSI, TSI and CIG information field.
const IDLen = 20

// EncodeID formats a station identifier: printable characters only, last
// character first, blank padded to 20 bytes.
func EncodeID(id string) []byte {
	var chars []byte
	for i := 0; i < len(id) && len(chars) < IDLen; i++ {
		if c := id[i]; c >= ' ' && c < 0x7f {
			chars = append(chars, c)
		}
	}
	out := make([]byte, IDLen)
	for i := range out {
		out[i] = ' '
	}
	for i, c := range chars {
		out[len(chars)-1-i] = c
	}
	return out
}

// DecodeID reverses EncodeID, dropping padding and unprintable bytes.
func DecodeID(fif []byte) string {
	var sb strings.Builder
	for i := len(fif) - 1; i >= 0; i-- {
		if c := fif[i]; c >= ' ' && c < 0x7f {
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// NewPPS builds a partial page signal. frames is the number of frames sent
// in the block; the field carries frames minus one.
func NewPPS(ppm t30.FCF, sender bool, page, block, frames int) *Frame {
	fc := byte(0)
	if frames > 0 {
		fc = byte(frames - 1)
	}
	return NewFrame(t30.PPS.WithX(sender), true, byte(ppm.WithX(sender)), byte(page), byte(block), fc)
}

// DecodePPS reads a partial page signal. A frame count field of 0 or 255
// also encodes "no frames" when nothing was received in the block, so the
// count is taken as zero in that case.
func DecodePPS(f *Frame, dataSeen bool) (t30.PartialPage, error) {
	fif := f.FIF()
	if f.FCF() != t30.PPS || len(fif) < 4 {
		return t30.PartialPage{}, fmt.Errorf("PPS with %d byte FIF: %w", len(fif), t30.ErrMalformed)
	}
	fc := int(fif[3]) + 1
	if !dataSeen && (fc == 1 || fc == t30.BlockFrames) {
		fc = 0
	}
	return t30.PartialPage{
		PPM:    t30.FCF(fif[0]).Type(),
		Page:   int(fif[1]),
		Block:  int(fif[2]),
		Frames: fc,
	}, nil
}

// NewFCD builds an ECM facsimile coded data frame.
func NewFCD(n int, payload []byte) *Frame {
	fif := make([]byte, 1+len(payload))
	fif[0] = byte(n)
	copy(fif[1:], payload)
	return NewFrame(t30.FCD, false, fif...)
}

// DecodeFCD returns the frame number and payload of an FCD frame.
func DecodeFCD(f *Frame) (int, []byte, error) {
	fif := f.FIF()
	if f.FCF() != t30.FCD || len(fif) < 2 {
		return 0, nil, fmt.Errorf("FCD with %d byte FIF: %w", len(fif), t30.ErrMalformed)
	}
	return int(fif[0]), fif[1:], nil
}

// NewRCP builds the return to control for partial page frame.
func NewRCP() *Frame {
	return NewFrame(t30.RCP, false)
}

// NewEOR builds an end of retransmission frame.
func NewEOR(ppm t30.FCF, sender bool) *Frame {
	return NewFrame(t30.EOR.WithX(sender), true, byte(ppm.WithX(sender)))
}
