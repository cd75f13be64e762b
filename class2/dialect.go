package class2

import "gofaxmodem/t30"

// Dialect names the commands and unsolicited responses of one Class 2
// flavour.
type Dialect struct {
	Name  string
	Class string

	LocalIDCmd    string
	CapsCmd       string
	SessionCmd    string
	BitOrderCmd   string
	PageStatusCmd string
	PollCmd       string
	AbortCmd      string
	// Init is sent after the common setup commands.
	Init []string

	Connect string
	TSI     string
	CSI     string
	DCS     string
	DIS     string
	PTS     string
	ET      string
	Hangup  string
	Poll    string

	// HexHangup means hangup codes are reported in hex.
	HexHangup bool
	// InBandPPM means the post-page message follows the page data as
	// <DLE><char> instead of being sent with AT+FET.
	InBandPPM bool
}

// Class2 is the SP-2388 draft implemented by most older modems.
var Class2 = Dialect{
	Name:          "Class 2",
	Class:         "2",
	LocalIDCmd:    "+FLID",
	CapsCmd:       "+FDCC",
	SessionCmd:    "+FDIS",
	BitOrderCmd:   "+FBOR",
	PageStatusCmd: "+FPTS",
	PollCmd:       "+FSPL",
	AbortCmd:      "+FK",
	Connect:       "+FCON",
	TSI:           "+FTSI:",
	CSI:           "+FCSI:",
	DCS:           "+FDCS:",
	DIS:           "+FDIS:",
	PTS:           "+FPTS:",
	ET:            "+FET:",
	Hangup:        "+FHNG:",
	Poll:          "+FPOLL",
}

// Class20 is ITU-T T.32.
var Class20 = Dialect{
	Name:          "Class 2.0",
	Class:         "2.0",
	LocalIDCmd:    "+FLI",
	CapsCmd:       "+FCC",
	SessionCmd:    "+FIS",
	BitOrderCmd:   "+FBO",
	PageStatusCmd: "+FPS",
	PollCmd:       "+FSP",
	AbortCmd:      "+FKS",
	Init:          []string{"AT+FNR=1,1,1,0"},
	Connect:       "+FCO",
	TSI:           "+FTI:",
	CSI:           "+FCI:",
	DCS:           "+FCS:",
	DIS:           "+FIS:",
	PTS:           "+FPS:",
	ET:            "+FET:",
	Hangup:        "+FHS:",
	Poll:          "+FPO",
	HexHangup:     true,
	InBandPPM:     true,
}

// DialectFor returns the dialect for a configured class, "2" or "2.0".
func DialectFor(class string) (Dialect, bool) {
	switch class {
	case "2", "class2":
		return Class2, true
	case "2.0", "20", "class2.0":
		return Class20, true
	}
	return Dialect{}, false
}

// Post-page message codes of +FET and AT+FET.
var ppmCodes = [...]t30.FCF{t30.MPS, t30.EOM, t30.EOP, t30.PriMPS, t30.PriEOM, t30.PriEOP}

// ppmFromCode decodes a +FET value.
func ppmFromCode(code int) (t30.FCF, bool) {
	if code < 0 || code >= len(ppmCodes) {
		return t30.Null, false
	}
	return ppmCodes[code], true
}

// codeForPPM returns the AT+FET value of ppm.
func codeForPPM(ppm t30.FCF) int {
	for i, f := range ppmCodes {
		if f == ppm {
			return i
		}
	}
	return 2
}

// inBandPPM returns the character sent after <DLE> to end a page in T.32.
func inBandPPM(ppm t30.FCF) byte {
	switch ppm.Unprioritized() {
	case t30.MPS:
		return ','
	case t30.EOM:
		return ';'
	}
	return '.'
}

// Post-page response codes of +FPTS and AT+FPTS.
const (
	pprMCF = 1
	pprRTN = 2
	pprRTP = 3
	pprPIN = 4
	pprPIP = 5
)
