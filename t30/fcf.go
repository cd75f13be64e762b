// Package t30 holds the ITU-T T.30 tables shared by the Class 1 and Class 2
// engines: frame control fields, the DIS/DCS capability set, status codes,
// modulations, timers, training checks and the ECM block bookkeeping.
package t30

import "fmt"

// FCF is a T.30 facsimile control field in T.30 notation order.
type FCF byte

// XBit is set in the FCF by the station that received a valid DIS.
const XBit FCF = 0x80

// Frames of the DIS/DTC group carry no X bit; bit 7 distinguishes DIS from DTC.
const (
	DIS FCF = 0x01
	CSI FCF = 0x02
	NSF FCF = 0x04
	DTC FCF = 0x81
	CIG FCF = 0x82
	PWD FCF = 0x83
	NSC FCF = 0x84
	SEP FCF = 0x85
)

// X-group frames.
const (
	CFR    FCF = 0x21
	FTT    FCF = 0x22
	CTR    FCF = 0x23
	MCF    FCF = 0x31
	RTN    FCF = 0x32
	RTP    FCF = 0x33
	PIN    FCF = 0x34
	PIP    FCF = 0x35
	RNR    FCF = 0x37
	ERR    FCF = 0x38
	PPR    FCF = 0x3d
	DCS    FCF = 0x41
	TSI    FCF = 0x42
	SUB    FCF = 0x43
	NSS    FCF = 0x44
	CTC    FCF = 0x48
	CRP    FCF = 0x58
	DCN    FCF = 0x5f
	FCD    FCF = 0x60
	RCP    FCF = 0x61
	EOM    FCF = 0x71
	MPS    FCF = 0x72
	EOR    FCF = 0x73
	EOP    FCF = 0x74
	RR     FCF = 0x76
	PriEOM FCF = 0x79
	PriMPS FCF = 0x7a
	PriEOP FCF = 0x7c
	PPS    FCF = 0x7d
)

// Null is the secondary FCF of a PPS or EOR sent inside a page.
const Null FCF = 0x00

var fcfNames = map[FCF]string{
	DIS: "DIS", CSI: "CSI", NSF: "NSF", DTC: "DTC", CIG: "CIG", PWD: "PWD",
	NSC: "NSC", SEP: "SEP", CFR: "CFR", FTT: "FTT", CTR: "CTR", MCF: "MCF",
	RTN: "RTN", RTP: "RTP", PIN: "PIN", PIP: "PIP", RNR: "RNR", ERR: "ERR",
	PPR: "PPR", DCS: "DCS", TSI: "TSI", SUB: "SUB", NSS: "NSS", CTC: "CTC",
	CRP: "CRP", DCN: "DCN", FCD: "FCD", RCP: "RCP", EOM: "EOM", MPS: "MPS",
	EOR: "EOR", EOP: "EOP", RR: "RR", PriEOM: "PRI-EOM", PriMPS: "PRI-MPS",
	PriEOP: "PRI-EOP", PPS: "PPS", Null: "NULL",
}

// Type strips the X bit from X-group frames. DIS-group frames are returned
// unchanged.
func (f FCF) Type() FCF {
	if f&0x70 == 0 {
		return f
	}
	return f &^ XBit
}

// WithX returns the FCF as sent by a station with the given X bit role.
func (f FCF) WithX(sender bool) FCF {
	if f&0x70 == 0 || !sender {
		return f
	}
	return f | XBit
}

func (f FCF) String() string {
	if n, ok := fcfNames[f.Type()]; ok {
		return n
	}
	return fmt.Sprintf("FCF(%#02x)", byte(f))
}

// IsPPM reports whether f is a post-page message.
func (f FCF) IsPPM() bool {
	switch f.Type() {
	case MPS, EOM, EOP, PriMPS, PriEOM, PriEOP:
		return true
	}
	return false
}

// Unprioritized maps PRI-EOM, PRI-MPS and PRI-EOP onto their plain forms.
func (f FCF) Unprioritized() FCF {
	switch f.Type() {
	case PriEOM:
		return EOM
	case PriMPS:
		return MPS
	case PriEOP:
		return EOP
	}
	return f.Type()
}
