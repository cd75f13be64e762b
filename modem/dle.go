package modem

// Control characters used in data mode.
const (
	DLE = 0x10
	ETX = 0x03
	DC2 = 0x12
	XON = 0x11
	SUB = 0x1a
	CAN = 0x18
)

// EscapeDLE doubles every DLE in data and appends the <DLE><ETX>
// terminator.
func EscapeDLE(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/64+2)
	for _, b := range data {
		if b == DLE {
			out = append(out, DLE)
		}
		out = append(out, b)
	}
	return append(out, DLE, ETX)
}

// dleDecoder removes data mode escapes from a byte stream.
type dleDecoder struct {
	escaped bool
	done    bool
}

// feed processes one byte and appends any resulting data to out.
func (d *dleDecoder) feed(out []byte, b byte) []byte {
	if !d.escaped {
		if b == DLE {
			d.escaped = true
			return out
		}
		return append(out, b)
	}
	d.escaped = false
	switch b {
	case DLE:
		return append(out, DLE)
	case SUB:
		return append(out, DLE, DLE)
	case ETX:
		d.done = true
	}
	// Other <DLE>x pairs are modem status and carry no data.
	return out
}

// UnescapeDLE decodes src up to and including <DLE><ETX>. It returns the
// data, the unconsumed remainder and whether the terminator was seen.
func UnescapeDLE(src []byte) (data, rest []byte, done bool) {
	var d dleDecoder
	for i, b := range src {
		data = d.feed(data, b)
		if d.done {
			return data, src[i+1:], true
		}
	}
	return data, nil, false
}
