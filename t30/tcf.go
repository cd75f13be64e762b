package t30

import "time"

// TCFDuration is the length of the training check sequence.
const TCFDuration = 1500 * time.Millisecond

// TCFCheck holds the thresholds used to judge a received TCF.
type TCFCheck struct {
	// MinRun is the shortest acceptable run of zero bytes, as a duration at
	// the negotiated rate.
	MinRun time.Duration
	// MinRunECMMod divides MinRun when ECM is negotiated.
	MinRunECMMod int
	// MaxNonZero is the highest acceptable share of non-zero bytes, in percent.
	MaxNonZero int
}

// DefaultTCFCheck accepts a zero run of two thirds of the TCF with at most
// 10% noise.
var DefaultTCFCheck = TCFCheck{
	MinRun:       1000 * time.Millisecond,
	MinRunECMMod: 2,
	MaxNonZero:   10,
}

// TCFResult describes a scored TCF.
type TCFResult struct {
	Good       bool
	Length     int
	NonZero    int
	LongestRun int
	MinRun     int
}

// TransferSize is the number of bytes sent in d at the rate of p.
func TransferSize(p Params, d time.Duration) int {
	return int(int64(p.BitRate()) * int64(d/time.Millisecond) / 8000)
}

// TCF returns a buffer of zeros of the TCF length at the rate of p.
func TCF(p Params) []byte {
	return make([]byte, TransferSize(p, TCFDuration))
}

// Score judges the received training check data.
func (c TCFCheck) Score(buf []byte, p Params) TCFResult {
	r := TCFResult{Length: len(buf)}
	run := 0
	for _, b := range buf {
		if b != 0 {
			r.NonZero++
			run = 0
			continue
		}
		run++
		if run > r.LongestRun {
			r.LongestRun = run
		}
	}
	r.MinRun = TransferSize(p, c.MinRun)
	if p.ECM() && c.MinRunECMMod > 1 {
		r.MinRun /= c.MinRunECMMod
	}
	r.Good = len(buf) > 0 &&
		r.NonZero*100 <= len(buf)*c.MaxNonZero &&
		r.LongestRun >= r.MinRun
	return r
}
