package t30

// BlockFrames is the number of frames in a full ECM block.
const BlockFrames = 256

// PPRSize is the length of the PPR bitmap in bytes.
const PPRSize = BlockFrames / 8

// MaxPPR is the number of PPR rounds before the sender must send CTC or EOR.
const MaxPPR = 4

// PartialPage is a decoded partial page signal.
type PartialPage struct {
	PPM    FCF // Null inside a page, otherwise the post-page message
	Page   int
	Block  int
	Frames int // number of frames in the block, 0 when none were sent
}

// Block collects the frames of one ECM partial page. Frame n is tracked by
// bit n of the PPR bitmap, first transmitted bit first; a set bit means the
// frame is still missing.
type Block struct {
	frameSize int
	data      []byte
	ppr       [PPRSize]byte
	fcount    int
	dataSeen  bool
}

// NewBlock returns an empty block with every frame marked missing.
func NewBlock(frameSize int) *Block {
	b := &Block{
		frameSize: frameSize,
		data:      make([]byte, BlockFrames*frameSize),
	}
	for i := range b.ppr {
		b.ppr[i] = 0xff
	}
	return b
}

func pprMask(n int) byte { return 0x80 >> uint(n%8) }

// Put stores frame n. Frames outside the block are ignored.
func (b *Block) Put(n int, payload []byte) {
	if n < 0 || n >= BlockFrames {
		return
	}
	off := n * b.frameSize
	dst := b.data[off : off+b.frameSize]
	copied := copy(dst, payload)
	for i := copied; i < len(dst); i++ {
		dst[i] = 0
	}
	b.ppr[n/8] &^= pprMask(n)
	if n+1 > b.fcount {
		b.fcount = n + 1
	}
	b.dataSeen = true
}

// Missing reports whether frame n has not been received.
func (b *Block) Missing(n int) bool {
	return b.ppr[n/8]&pprMask(n) != 0
}

// SetFrameCount raises the frame count to the count announced by PPS.
func (b *Block) SetFrameCount(fc int) {
	if fc > BlockFrames {
		fc = BlockFrames
	}
	if fc > b.fcount {
		b.fcount = fc
	}
}

// FrameCount is the number of frames the block spans.
func (b *Block) FrameCount() int { return b.fcount }

// DataSeen reports whether any frame was stored.
func (b *Block) DataSeen() bool { return b.dataSeen }

// Good reports whether every frame below the last one has arrived. The
// last frame is excused: its count is ambiguous at the block boundary.
func (b *Block) Good() bool {
	for n := 0; n < b.fcount-1; n++ {
		if b.Missing(n) {
			return false
		}
	}
	return true
}

// LastMissing reports whether the last frame of the block, the one Good
// excuses, never arrived.
func (b *Block) LastMissing() bool {
	return b.fcount > 0 && b.Missing(b.fcount-1)
}

// MissingCount returns the number of missing frames in [0, fcount).
func (b *Block) MissingCount() int {
	c := 0
	for n := 0; n < b.fcount; n++ {
		if b.Missing(n) {
			c++
		}
	}
	return c
}

// PPR returns the bitmap to send, with frames beyond the count cleared.
func (b *Block) PPR() []byte {
	out := make([]byte, PPRSize)
	for n := 0; n < b.fcount; n++ {
		if b.Missing(n) {
			out[n/8] |= pprMask(n)
		}
	}
	return out
}

// Bytes returns the block data covering the received frame count.
func (b *Block) Bytes() []byte {
	return b.data[:b.fcount*b.frameSize]
}

// RequestedFrames lists the frame numbers set in a received PPR bitmap,
// limited to the first count frames.
func RequestedFrames(ppr []byte, count int) []int {
	var frames []int
	for n := 0; n < count && n/8 < len(ppr); n++ {
		if ppr[n/8]&pprMask(n) != 0 {
			frames = append(frames, n)
		}
	}
	return frames
}

// TrimPadding drops the trailing zero bytes a sender uses to fill the last
// frame of a page.
func TrimPadding(p []byte) []byte {
	n := len(p)
	for n > 0 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}
