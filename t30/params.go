package t30

import (
	"fmt"
	"strconv"
	"strings"
)

// Vertical resolution.
const (
	VRNormal = 0 // R8 x 3.85 l/mm
	VRFine   = 1 // R8 x 7.7 l/mm
	VRSuper  = 2 // R8 x 15.4 l/mm
	VRHyper  = 3 // R16 x 15.4 l/mm
)

// Bit rate indexes. BR16800 through BR33600 are only reachable over V.34.
const (
	BR2400 = iota
	BR4800
	BR7200
	BR9600
	BR12000
	BR14400
	BR16800
	BR19200
	BR21600
	BR24000
	BR26400
	BR28800
	BR31200
	BR33600
)

var bitRates = [...]int{2400, 4800, 7200, 9600, 12000, 14400, 16800, 19200, 21600, 24000, 26400, 28800, 31200, 33600}

// Page width.
const (
	WD1728 = 0
	WD2048 = 1
	WD2432 = 2
	WD1216 = 3
	WD864  = 4
)

var pageWidths = [...]int{1728, 2048, 2432, 1216, 864}

// Page length.
const (
	LNA4        = 0
	LNB4        = 1
	LNUnlimited = 2
)

// Data format, ordered from least to most efficient.
const (
	DFMH = iota
	DFMR
	DFMMR
	DFJBIGL0
	DFJBIG
)

var dataFormatNames = [...]string{"MH", "MR", "MMR", "JBIG-L0", "JBIG"}

// Error correction.
const (
	ECDisabled   = 0
	ECEnabled64  = 1
	ECEnabled256 = 2
	ECHalf       = 3
	ECFull       = 4
)

// Minimum scan line time.
const (
	ST0ms = iota
	ST5ms
	ST10ms5ms
	ST10ms
	ST20ms10ms
	ST20ms
	ST40ms20ms
	ST40ms
)

var scanTimes = [...]int{0, 5, 10, 10, 20, 20, 40, 40}

// JPEG capability bits.
const (
	JPEnabled   = 1 << 0
	JPFullColor = 1 << 1
)

// Params is the negotiated or advertised parameter set of a session, using
// the value ranges of T.32 Table 21.
type Params struct {
	VR int // vertical resolution
	BR int // bit rate
	WD int // page width
	LN int // page length
	DF int // data format
	EC int // error correction
	BF int // binary file transfer
	ST int // scan time
	JP int // JPEG

	// V17 selects V.17 rather than V.29 at 7200 and 9600 bit/s.
	V17 bool
}

// DISFlags carries the DIS/DTC bits that are not part of Params.
type DISFlags struct {
	CanTransmit bool // bit 9, document ready for polling
	CanReceive  bool // bit 10
}

type field struct {
	name string
	val  int
	max  int
}

func (p Params) fields() []field {
	return []field{
		{"vr", p.VR, VRHyper},
		{"br", p.BR, BR33600},
		{"wd", p.WD, WD864},
		{"ln", p.LN, LNUnlimited},
		{"df", p.DF, DFJBIG},
		{"ec", p.EC, ECFull},
		{"bf", p.BF, 1},
		{"st", p.ST, ST40ms},
		{"jp", p.JP, JPEnabled | JPFullColor},
	}
}

// Validate checks every field against its enumerated range.
func (p Params) Validate() error {
	for _, f := range p.fields() {
		if f.val < 0 || f.val > f.max {
			return fmt.Errorf("%s=%d: %w", f.name, f.val, ErrParamRange)
		}
	}
	return nil
}

// BitRate returns the signalling rate in bit/s.
func (p Params) BitRate() int {
	if p.BR < 0 || p.BR >= len(bitRates) {
		return 0
	}
	return bitRates[p.BR]
}

// ECM reports whether error correction is in use.
func (p Params) ECM() bool { return p.EC != ECDisabled }

// FrameSize is the ECM frame size in bytes.
func (p Params) FrameSize() int {
	if p.EC == ECEnabled64 {
		return 64
	}
	return 256
}

// PageWidth returns the scan line width in pixels.
func (p Params) PageWidth() int {
	if p.WD < 0 || p.WD >= len(pageWidths) {
		return pageWidths[0]
	}
	w := pageWidths[p.WD]
	if p.VR == VRHyper {
		w *= 2
	}
	return w
}

// Resolution returns the horizontal and vertical resolution in dots per inch.
func (p Params) Resolution() (x, y int) {
	switch p.VR {
	case VRFine:
		return 204, 196
	case VRSuper:
		return 204, 391
	case VRHyper:
		return 408, 391
	}
	return 204, 98
}

// ScanLineTime returns the minimum scan line time in milliseconds at the
// negotiated resolution.
func (p Params) ScanLineTime() int {
	if p.ST < 0 || p.ST >= len(scanTimes) {
		return 0
	}
	ms := scanTimes[p.ST]
	switch p.ST {
	case ST10ms5ms, ST20ms10ms, ST40ms20ms:
		if p.VR != VRNormal {
			ms /= 2
		}
	}
	return ms
}

// DataFormatName returns a short name for the data format.
func (p Params) DataFormatName() string {
	if p.DF < 0 || p.DF >= len(dataFormatNames) {
		return "unknown"
	}
	return dataFormatNames[p.DF]
}

func (p Params) String() string {
	ecm := "no ECM"
	if p.ECM() {
		ecm = fmt.Sprintf("ECM-%d", p.FrameSize())
	}
	mod := ""
	if p.V17 && p.BR <= BR14400 {
		mod = " (V.17)"
	}
	x, y := p.Resolution()
	return fmt.Sprintf("%d bit/s%s, %dx%d dpi, %d px, %s, %s, %d ms",
		p.BitRate(), mod, x, y, p.PageWidth(), p.DataFormatName(), ecm, p.ScanLineTime())
}

// Encode packs the parameters into the integer used by xferfaxlog records.
func (p Params) Encode() uint {
	var ec uint
	if p.ECM() {
		ec = 1
	}
	return uint(p.VR&7) | uint(p.BR&15)<<3 | uint(p.WD&7)<<7 | uint(p.LN&3)<<10 |
		uint(p.DF&3)<<12 | ec<<16 | uint(p.BF&1)<<17 | uint(p.ST&7)<<18 | uint(p.JP&3)<<21
}

// ParseDataFormat interprets a Class 2 data format value. Without bitmap it
// is the legacy enumeration (0 MH, 1 MR, 3 MMR); with bitmap it is the T.32
// Amendment 1 capability mask (bit 0 MR, bit 1 MMR, bit 2 JBIG-L0, bit 3
// JBIG) and the best format is returned.
func ParseDataFormat(v int, bitmap bool) (int, error) {
	if !bitmap {
		switch v {
		case 0:
			return DFMH, nil
		case 1:
			return DFMR, nil
		case 3:
			return DFMMR, nil
		}
		return 0, fmt.Errorf("df=%d: %w", v, ErrParamRange)
	}
	if v < 0 || v > 0x0f {
		return 0, fmt.Errorf("df=%#x: %w", v, ErrParamRange)
	}
	switch {
	case v&0x08 != 0:
		return DFJBIG, nil
	case v&0x04 != 0:
		return DFJBIGL0, nil
	case v&0x02 != 0:
		return DFMMR, nil
	case v&0x01 != 0:
		return DFMR, nil
	}
	return DFMH, nil
}

// DataFormatCode is the inverse of ParseDataFormat. JBIG has no legacy code
// and is reported as MMR.
func (p Params) DataFormatCode(bitmap bool) int {
	if !bitmap {
		switch p.DF {
		case DFMH:
			return 0
		case DFMR:
			return 1
		}
		return 3
	}
	switch p.DF {
	case DFMR:
		return 0x01
	case DFMMR:
		return 0x03
	case DFJBIGL0:
		return 0x07
	case DFJBIG:
		return 0x0f
	}
	return 0
}

// ParseClass2Params parses the 8-field T.30 or 9-field T.32 capability string
// reported by +FDCS, +FDIS, +FCS and friends, e.g. "1,5,0,2,1,0,0,3".
//
// The string carries a bit rate but no modulation, so V17 is set only for
// 12000 and 14400 bit/s. A V.17 session at 7200 or 9600 bit/s reads as
// V.29 or V.27ter.
func ParseClass2Params(s string, dfBitmap bool) (Params, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 8 && len(parts) != 9 {
		return Params{}, fmt.Errorf("%d fields in %q: %w", len(parts), s, ErrMalformed)
	}
	vals := make([]int, 9)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		base := 10
		if strings.HasPrefix(part, "0x") || strings.HasPrefix(part, "0X") {
			part, base = part[2:], 16
		}
		v, err := strconv.ParseInt(part, base, 32)
		if err != nil {
			return Params{}, fmt.Errorf("field %d of %q: %w", i+1, s, ErrMalformed)
		}
		vals[i] = int(v)
	}
	df, err := ParseDataFormat(vals[4], dfBitmap)
	if err != nil {
		return Params{}, err
	}
	p := Params{
		VR: vals[0], BR: vals[1], WD: vals[2], LN: vals[3], DF: df,
		EC: vals[5], BF: vals[6], ST: vals[7], JP: vals[8],
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	p.V17 = p.BR == BR12000 || p.BR == BR14400
	return p, nil
}

// Class2String formats the parameters for AT+FDCC, AT+FDIS and friends.
func (p Params) Class2String(dfBitmap bool) string {
	s := fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%d", p.VR, p.BR, p.WD, p.LN,
		p.DataFormatCode(dfBitmap), p.EC, p.BF, p.ST)
	if p.JP != 0 {
		s += fmt.Sprintf(",%d", p.JP)
	}
	return s
}

// Trouble records marginal capabilities seen on earlier calls to a remote.
type Trouble struct {
	V34 bool
	V17 bool
}

// Negotiator picks the session parameters from local and remote capabilities.
type Negotiator interface {
	Negotiate(local, remote Params) (Params, error)
}

// DefaultNegotiator applies BestCommon with the configured trouble flags.
type DefaultNegotiator struct {
	Trouble Trouble
}

func (n DefaultNegotiator) Negotiate(local, remote Params) (Params, error) {
	p := BestCommon(local, remote, n.Trouble)
	return p, p.Validate()
}

// BestCommon returns the best parameter set both stations support. ECM is
// decided first, then the rate, then the data format, then the scan time;
// trouble flags cap the rate at the safer modulation.
func BestCommon(local, remote Params, tr Trouble) Params {
	var p Params

	if local.ECM() && remote.ECM() {
		p.EC = min(clampEC(local.EC), clampEC(remote.EC))
	}

	p.BR = min(local.BR, remote.BR)
	p.V17 = local.V17 && remote.V17 && !tr.V17
	if tr.V34 && p.BR > BR14400 {
		p.BR = BR14400
	}
	if p.BR > BR9600 && p.BR <= BR14400 && !p.V17 {
		p.BR = BR9600
	}

	p.DF = min(local.DF, remote.DF)
	if !p.ECM() && p.DF > DFMR {
		p.DF = DFMR
	}
	p.ST = max(local.ST, remote.ST)

	p.VR = min(local.VR, remote.VR)
	p.WD = local.WD
	if pageWidths[clampWD(remote.WD)] < pageWidths[clampWD(local.WD)] {
		p.WD = remote.WD
	}
	p.LN = min(local.LN, remote.LN)
	p.BF = local.BF & remote.BF
	if p.ECM() {
		p.JP = local.JP & remote.JP
	}
	return p
}

func clampWD(wd int) int {
	if wd < 0 || wd >= len(pageWidths) {
		return WD1728
	}
	return wd
}

func clampEC(ec int) int {
	if ec > ECEnabled256 {
		return ECEnabled256
	}
	return ec
}
