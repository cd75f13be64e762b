package class2

import (
	"fmt"
	"strconv"
	"strings"

	"gofaxmodem/t30"
)

// hangupCode is one row of the hangup table. The same condition is
// reported with different numbers by SP-2388 Class 2 (decimal), T.32
// Class 2.0 (hex) and the EIA-592 draft; an empty column means the scheme
// has no code for it.
type hangupCode struct {
	class2  string
	class20 string
	eia592  string
	status  int
	message string
}

// Status codes of the table start at StatusHangupBase.
const StatusHangupBase = 200

var hangupCodes = [...]hangupCode{
	// Call placement and termination
	{"0", "00", "0", 200, "Normal and proper end of connection"},
	{"1", "01", "1", 201, "Ring detect without successful handshake"},
	{"2", "02", "2", 202, "Call aborted, from +FK or <CAN>"},
	{"", "03", "", 203, "No loop current"},
	{"", "04", "", 204, "Ringback detected, no answer (timeout)"},
	{"", "05", "", 205, "Ringback detected, no answer without CED"},
	// Transmit Phase A and miscellaneous errors
	{"10", "10", "10", 210, "Unspecified Phase A error"},
	{"11", "11", "11", 211, "No answer (T.30 T1 timeout)"},
	// Transmit Phase B
	{"20", "20", "20", 220, "Unspecified Transmit Phase B error"},
	{"21", "21", "21", 221, "Remote cannot be polled"},
	{"22", "22", "22", 222, "COMREC error in transmit Phase B/got DCN"},
	{"23", "23", "23", 223, "COMREC invalid command received/no DIS or DTC"},
	{"24", "24", "24", 224, "RSPREC error/got DCN"},
	{"25", "25", "25", 225, "DCS sent 3 times without response"},
	{"26", "26", "26", 226, "DIS/DTC received 3 times; DCS not recognized"},
	{"27", "27", "27", 227, "Failure to train at 2400 bps or +FMINSP value"},
	{"28", "28", "28", 228, "RSPREC invalid response received"},
	// Transmit Phase C
	{"40", "40", "30", 240, "Unspecified Transmit Phase C error"},
	{"", "41", "", 241, "Unspecified Image format error"},
	{"", "42", "", 242, "Image conversion error"},
	{"43", "43", "33", 243, "DTE to DCE data underflow"},
	{"", "44", "", 244, "Unrecognized Transparent data command"},
	{"", "45", "", 245, "Image error, line length wrong"},
	{"", "46", "", 246, "Image error, page length wrong"},
	{"", "47", "", 247, "Image error, wrong compression code"},
	// Transmit Phase D
	{"50", "50", "40", 250, "Unspecified Transmit Phase D error"},
	{"51", "51", "41", 251, "RSPREC error/got DCN"},
	{"52", "52", "42", 252, "No response to MPS repeated 3 times"},
	{"53", "53", "43", 253, "Invalid response to MPS"},
	{"54", "54", "44", 254, "No response to EOP repeated 3 times"},
	{"55", "55", "45", 255, "Invalid response to EOP"},
	{"56", "56", "46", 256, "No response to EOM repeated 3 times"},
	{"57", "57", "47", 257, "Invalid response to EOM"},
	{"58", "58", "48", 258, "Unable to continue after PIN or PIP"},
	// Receive Phase B
	{"70", "70", "50", 260, "Unspecified Receive Phase B error"},
	{"71", "71", "51", 261, "RSPREC error/got DCN"},
	{"72", "72", "52", 262, "COMREC error"},
	{"73", "73", "53", 263, "T.30 T2 timeout, expected page not received"},
	{"74", "74", "54", 264, "T.30 T1 timeout after EOM received"},
	// Receive Phase C
	{"90", "90", "60", 270, "Unspecified Receive Phase C error"},
	{"91", "91", "61", 271, "Missing EOL after 5 seconds"},
	{"93", "93", "63", 273, "DCE to DTE buffer overflow"},
	{"94", "94", "64", 274, "Bad CRC or frame (ECM or BFT modes)"},
	// Receive Phase D
	{"100", "A0", "70", 280, "Unspecified Receive Phase D error"},
	{"101", "A1", "71", 281, "RSPREC invalid response received"},
	{"102", "A2", "72", 282, "COMREC invalid response received"},
	{"103", "A3", "73", 283, "Unable to continue after PIN or PIP, no PRI-Q"},
}

// StatusNormalHangup is the status of +FHNG:0.
const StatusNormalHangup = StatusHangupBase

// StatusUnknownHangup is used for codes missing from the table.
const StatusUnknownHangup = 299

// HangupStatus maps a hangup code as reported by the modem in dialect d to
// its canonical status. Class 2 modems that follow the EIA-592 draft
// numbering are recognised when the SP-2388 column has no match.
func HangupStatus(d Dialect, code string) *t30.Status {
	code = strings.TrimSpace(code)
	if h, ok := lookupHangup(d, code); ok {
		return &t30.Status{Code: h.status, Message: h.message}
	}
	return &t30.Status{
		Code:    StatusUnknownHangup,
		Message: fmt.Sprintf("Unknown hangup code %q", code),
	}
}

func lookupHangup(d Dialect, code string) (hangupCode, bool) {
	if d.HexHangup {
		v, err := strconv.ParseUint(code, 16, 8)
		if err != nil {
			return hangupCode{}, false
		}
		for _, h := range hangupCodes {
			if sameCode(h.class20, v, 16) {
				return h, true
			}
		}
		return hangupCode{}, false
	}
	v, err := strconv.ParseUint(code, 10, 16)
	if err != nil {
		return hangupCode{}, false
	}
	for _, h := range hangupCodes {
		if sameCode(h.class2, v, 10) {
			return h, true
		}
	}
	for _, h := range hangupCodes {
		if sameCode(h.eia592, v, 10) {
			return h, true
		}
	}
	return hangupCode{}, false
}

func sameCode(col string, v uint64, base int) bool {
	if col == "" {
		return false
	}
	c, err := strconv.ParseUint(col, base, 16)
	return err == nil && c == v
}

// IsNormalHangup reports whether code means a proper end of the call.
func IsNormalHangup(d Dialect, code string) bool {
	return HangupStatus(d, code).Code == StatusNormalHangup
}
