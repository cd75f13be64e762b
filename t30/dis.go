package t30

import "fmt"

// DIS/DTC/DCS bit numbers from T.30 Table 2. Bit n lives in byte (n-1)/8,
// first transmitted bit most significant.
const (
	bitReadyToTransmit = 9
	bitReadyToReceive  = 10
	bitRate1           = 11
	bitRate2           = 12
	bitRate3           = 13
	bitRate4           = 14
	bitFine            = 15
	bitMR              = 16
	bitWidth1          = 17
	bitWidth2          = 18
	bitLength1         = 19
	bitLength2         = 20
	bitScan1           = 21
	bitScan2           = 22
	bitScan3           = 23
	bitECM             = 27
	bitFrame64         = 28
	bitMMR             = 31
	bitSuperFine       = 41
	bitHyperFine       = 43
	bitBFT             = 53
	bitJPEG            = 68
	bitFullColor       = 69
	bitJBIG            = 78
	bitJBIGL0          = 79
)

type bits []byte

func (b bits) isSet(n int) bool {
	i := (n - 1) / 8
	if i >= len(b) {
		return false
	}
	return b[i]&(0x80>>uint((n-1)%8)) != 0
}

func (b *bits) set(n int) {
	i := (n - 1) / 8
	for len(*b) <= i {
		*b = append(*b, 0)
	}
	(*b)[i] |= 0x80 >> uint((n-1)%8)
}

// seal pads to minLen bytes and sets the extend bit of every byte that is
// followed by another. The extend bits are bits 24, 32, 40 and so on.
func (b *bits) seal(minLen int) []byte {
	for len(*b) < minLen {
		*b = append(*b, 0)
	}
	for i := 2; i < len(*b)-1; i++ {
		(*b)[i] |= 0x01
	}
	return *b
}

// code returns the value of the consecutive bits from first to last, first
// bit most significant.
func (b bits) code(first, last int) int {
	v := 0
	for n := first; n <= last; n++ {
		v <<= 1
		if b.isSet(n) {
			v |= 1
		}
	}
	return v
}

func (b *bits) setCode(first, last, v int) {
	for n := last; n >= first; n-- {
		if v&1 != 0 {
			b.set(n)
		}
		v >>= 1
	}
}

// DCS rate codes, bits 11-14.
var dcsRates = []struct {
	code int
	br   int
	v17  bool
}{
	{0x0, BR2400, false},
	{0x4, BR4800, false},
	{0x8, BR9600, false},
	{0xc, BR7200, false},
	{0x1, BR14400, true},
	{0x5, BR12000, true},
	{0x9, BR9600, true},
	{0xd, BR7200, true},
}

// DIS scan time codes, bits 21-23, indexed by ST.
var disScanCodes = [...]int{
	ST0ms:      0x7,
	ST5ms:      0x4,
	ST10ms5ms:  0x3,
	ST10ms:     0x2,
	ST20ms10ms: 0x6,
	ST20ms:     0x0,
	ST40ms20ms: 0x5,
	ST40ms:     0x1,
}

// FromDIS decodes the information field of a DIS, DTC or DCS frame.
func FromDIS(fif []byte, isDCS bool) (Params, error) {
	if isDCS {
		return DecodeDCS(fif)
	}
	p, _, err := DecodeDIS(fif)
	return p, err
}

// DecodeDIS decodes a DIS or DTC information field into the best
// capabilities it advertises.
func DecodeDIS(fif []byte) (Params, DISFlags, error) {
	var p Params
	var f DISFlags
	b := bits(fif)
	if len(b) < 3 {
		return p, f, fmt.Errorf("%d byte DIS: %w", len(b), ErrMalformed)
	}
	f.CanTransmit = b.isSet(bitReadyToTransmit)
	f.CanReceive = b.isSet(bitReadyToReceive)

	switch b.code(bitRate1, bitRate4) {
	case 0x0:
		p.BR = BR2400
	case 0x4:
		p.BR = BR4800
	case 0x8, 0xc:
		p.BR = BR9600
	case 0xd:
		p.BR, p.V17 = BR14400, true
	default:
		return p, f, fmt.Errorf("DIS rate code %#x: %w", b.code(bitRate1, bitRate4), ErrParamRange)
	}

	if err := decodeCommon(b, &p); err != nil {
		return p, f, err
	}

	st := -1
	code := b.code(bitScan1, bitScan3)
	for i, c := range disScanCodes {
		if c == code {
			st = i
		}
	}
	p.ST = st

	if b.isSet(bitECM) {
		p.EC = ECEnabled256
	}
	switch {
	case b.isSet(bitJBIG):
		p.DF = DFJBIG
	case b.isSet(bitJBIGL0):
		p.DF = DFJBIGL0
	case b.isSet(bitMMR):
		p.DF = DFMMR
	case b.isSet(bitMR):
		p.DF = DFMR
	}
	switch {
	case b.isSet(bitHyperFine):
		p.VR = VRHyper
	case b.isSet(bitSuperFine):
		p.VR = VRSuper
	case b.isSet(bitFine):
		p.VR = VRFine
	}
	return p, f, p.Validate()
}

// DecodeDCS decodes a DCS information field. Only combinations a DCS may
// carry are accepted.
func DecodeDCS(fif []byte) (Params, error) {
	var p Params
	b := bits(fif)
	if len(b) < 3 {
		return p, fmt.Errorf("%d byte DCS: %w", len(b), ErrMalformed)
	}

	code := b.code(bitRate1, bitRate4)
	found := false
	for _, r := range dcsRates {
		if r.code == code {
			p.BR, p.V17, found = r.br, r.v17, true
		}
	}
	if !found {
		return p, fmt.Errorf("DCS rate code %#x: %w", code, ErrParamRange)
	}

	if err := decodeCommon(b, &p); err != nil {
		return p, err
	}

	switch b.code(bitScan1, bitScan3) {
	case 0x7:
		p.ST = ST0ms
	case 0x4:
		p.ST = ST5ms
	case 0x2:
		p.ST = ST10ms
	case 0x0:
		p.ST = ST20ms
	case 0x1:
		p.ST = ST40ms
	default:
		return p, fmt.Errorf("DCS scan time code %#x: %w", b.code(bitScan1, bitScan3), ErrParamRange)
	}

	if b.isSet(bitECM) {
		p.EC = ECEnabled256
		if b.isSet(bitFrame64) {
			p.EC = ECEnabled64
		}
	}
	switch {
	case b.isSet(bitJBIG):
		p.DF = DFJBIG
	case b.isSet(bitJBIGL0):
		p.DF = DFJBIGL0
	case b.isSet(bitMMR):
		p.DF = DFMMR
	case b.isSet(bitMR):
		p.DF = DFMR
	}
	switch {
	case b.isSet(bitHyperFine):
		p.VR = VRHyper
	case b.isSet(bitSuperFine):
		p.VR = VRSuper
	case b.isSet(bitFine):
		p.VR = VRFine
	}
	return p, p.Validate()
}

func decodeCommon(b bits, p *Params) error {
	switch b.code(bitWidth1, bitWidth2) {
	case 0:
		p.WD = WD1728
	case 1:
		p.WD = WD2048
	case 2:
		p.WD = WD2432
	default:
		return fmt.Errorf("width code 3: %w", ErrParamRange)
	}
	switch b.code(bitLength1, bitLength2) {
	case 0:
		p.LN = LNA4
	case 1:
		p.LN = LNUnlimited
	case 2:
		p.LN = LNB4
	default:
		return fmt.Errorf("length code 3: %w", ErrParamRange)
	}
	if b.isSet(bitBFT) {
		p.BF = 1
	}
	if b.isSet(bitJPEG) {
		p.JP |= JPEnabled
	}
	if b.isSet(bitFullColor) {
		p.JP |= JPFullColor
	}
	return nil
}

// EncodeDIS builds the DIS or DTC information field advertising p.
func EncodeDIS(p Params, f DISFlags) []byte {
	var b bits
	if f.CanTransmit {
		b.set(bitReadyToTransmit)
	}
	if f.CanReceive {
		b.set(bitReadyToReceive)
	}
	switch {
	case p.BR >= BR12000 || (p.BR >= BR7200 && p.V17):
		b.setCode(bitRate1, bitRate4, 0xd)
	case p.BR >= BR7200:
		b.setCode(bitRate1, bitRate4, 0xc)
	case p.BR == BR4800:
		b.setCode(bitRate1, bitRate4, 0x4)
	}
	encodeCommon(&b, p)
	if p.ST >= 0 && p.ST < len(disScanCodes) {
		b.setCode(bitScan1, bitScan3, disScanCodes[p.ST])
	}
	if p.ECM() {
		b.set(bitECM)
	}
	if p.DF >= DFMR {
		b.set(bitMR)
	}
	if p.DF >= DFMMR {
		b.set(bitMMR)
	}
	if p.DF >= DFJBIGL0 {
		b.set(bitJBIGL0)
	}
	if p.DF >= DFJBIG {
		b.set(bitJBIG)
	}
	if p.VR >= VRFine {
		b.set(bitFine)
	}
	if p.VR >= VRSuper {
		b.set(bitSuperFine)
	}
	if p.VR >= VRHyper {
		b.set(bitHyperFine)
	}
	return b.seal(3)
}

// EncodeDCS builds the DCS information field selecting p. The result is
// always at least four bytes so the ECM bits are present.
func EncodeDCS(p Params) []byte {
	var b bits
	b.set(bitReadyToReceive)
	for _, r := range dcsRates {
		if r.br == p.BR && r.v17 == (p.V17 && p.BR <= BR14400 && p.BR >= BR7200) {
			b.setCode(bitRate1, bitRate4, r.code)
			break
		}
	}
	encodeCommon(&b, p)
	b.setCode(bitScan1, bitScan3, dcsScanCode(p))
	if p.ECM() {
		b.set(bitECM)
		if p.EC == ECEnabled64 {
			b.set(bitFrame64)
		}
	}
	switch p.DF {
	case DFMR:
		b.set(bitMR)
	case DFMMR:
		b.set(bitMMR)
	case DFJBIGL0:
		b.set(bitJBIGL0)
	case DFJBIG:
		b.set(bitJBIG)
	}
	switch p.VR {
	case VRFine:
		b.set(bitFine)
	case VRSuper:
		b.set(bitSuperFine)
	case VRHyper:
		b.set(bitHyperFine)
	}
	return b.seal(4)
}

func encodeCommon(b *bits, p Params) {
	switch p.WD {
	case WD2048:
		b.setCode(bitWidth1, bitWidth2, 1)
	case WD2432:
		b.setCode(bitWidth1, bitWidth2, 2)
	}
	switch p.LN {
	case LNUnlimited:
		b.setCode(bitLength1, bitLength2, 1)
	case LNB4:
		b.setCode(bitLength1, bitLength2, 2)
	}
	if p.BF != 0 {
		b.set(bitBFT)
	}
	if p.JP&JPEnabled != 0 {
		b.set(bitJPEG)
	}
	if p.JP&JPFullColor != 0 {
		b.set(bitFullColor)
	}
}

// dcsScanCode resolves the "x ms / y ms" scan times against the selected
// resolution; a DCS carries only a single time.
func dcsScanCode(p Params) int {
	fine := p.VR != VRNormal
	switch p.ST {
	case ST0ms:
		return 0x7
	case ST5ms:
		return 0x4
	case ST10ms5ms:
		if fine {
			return 0x4
		}
		return 0x2
	case ST10ms:
		return 0x2
	case ST20ms10ms:
		if fine {
			return 0x2
		}
		return 0x0
	case ST20ms:
		return 0x0
	case ST40ms20ms:
		if fine {
			return 0x0
		}
	}
	return 0x1
}

// CTCRate decodes the rate carried in bits 11-14 of a CTC information field.
func CTCRate(fif []byte) (br int, v17 bool, err error) {
	b := bits(fif)
	if len(b) < 2 {
		return 0, false, fmt.Errorf("%d byte CTC: %w", len(b), ErrMalformed)
	}
	code := b.code(bitRate1, bitRate4)
	for _, r := range dcsRates {
		if r.code == code {
			return r.br, r.v17, nil
		}
	}
	return 0, false, fmt.Errorf("CTC rate code %#x: %w", code, ErrParamRange)
}

// EncodeCTC builds the two byte CTC information field for the new rate.
func EncodeCTC(p Params) []byte {
	fif := EncodeDCS(p)
	return []byte{fif[0], fif[1]}
}
