package hdlc

const flag byte = 0x7e

// bitWriter packs bits least significant first, the order modems put them
// on the line.
type bitWriter struct {
	out   []byte
	cur   byte
	nbits uint
}

func (w *bitWriter) put(bit byte) {
	w.cur |= (bit & 1) << (w.nbits % 8)
	w.nbits++
	if w.nbits%8 == 0 {
		w.out = append(w.out, w.cur)
		w.cur = 0
	}
}

func (w *bitWriter) putFlag() {
	for i := 0; i < 8; i++ {
		w.put(flag >> i)
	}
}

func (w *bitWriter) reset() {
	w.out = w.out[:0]
	w.cur = 0
	w.nbits = 0
}

// Stuff serialises wire-form frames into a synchronous HDLC bit stream:
// preamble flags, zero-bit insertion after five consecutive ones, a flag
// between frames, and mark idle padding to the next byte boundary.
func Stuff(frames [][]byte, preamble int) []byte {
	if preamble < 1 {
		preamble = 1
	}
	var w bitWriter
	for i := 0; i < preamble; i++ {
		w.putFlag()
	}
	for _, f := range frames {
		ones := 0
		for _, b := range f {
			for i := 0; i < 8; i++ {
				bit := (b >> i) & 1
				w.put(bit)
				if bit == 0 {
					ones = 0
					continue
				}
				ones++
				if ones == 5 {
					w.put(0)
					ones = 0
				}
			}
		}
		w.putFlag()
	}
	for w.nbits%8 != 0 {
		w.put(1)
	}
	return w.out
}

// Unstuff recovers the frames delimited by flags in a bit stream produced by
// Stuff or by a modem in data mode. Partial frames, aborts (seven or more
// ones) and frames that are not a whole number of bytes are discarded; FCS is
// not checked here.
func Unstuff(stream []byte) [][]byte {
	var (
		frames  [][]byte
		w       bitWriter
		ones    int
		inFrame bool
	)
	for _, b := range stream {
		for i := 0; i < 8; i++ {
			if (b>>i)&1 == 1 {
				ones++
				if ones >= 7 {
					inFrame = false
					w.reset()
				}
				continue
			}
			switch {
			case ones == 6:
				// A flag. Its leading zero has already been stored as data.
				if inFrame {
					n := w.nbits
					if n%8 == 1 {
						n--
					}
					if n%8 == 0 && n >= 8 {
						frame := make([]byte, n/8)
						copy(frame, w.out)
						frames = append(frames, frame)
					}
				}
				inFrame = true
				w.reset()
			case ones == 5:
				// Inserted zero.
				if inFrame {
					for j := 0; j < 5; j++ {
						w.put(1)
					}
				}
			case inFrame:
				for j := 0; j < ones; j++ {
					w.put(1)
				}
				w.put(0)
			}
			ones = 0
		}
	}
	return frames
}
