package class1

import (
	"time"

	"gofaxmodem/t30"
)

// BadPageHandling selects what the receiver does with a page that fails the
// quality check.
type BadPageHandling int

const (
	// BadPageRTN discards the page and asks for retransmission.
	BadPageRTN BadPageHandling = iota
	// BadPageRTNSave keeps the page but still answers RTN.
	BadPageRTNSave
	// BadPageDCN disconnects.
	BadPageDCN
)

func (b BadPageHandling) String() string {
	switch b {
	case BadPageRTNSave:
		return "RTN-save"
	case BadPageDCN:
		return "DCN"
	}
	return "RTN"
}

// ParseBadPageHandling accepts "rtn", "rtn-save" and "dcn".
func ParseBadPageHandling(s string) (BadPageHandling, bool) {
	switch s {
	case "rtn", "RTN", "":
		return BadPageRTN, true
	case "rtn-save", "RTN-save", "RTN-SAVE":
		return BadPageRTNSave, true
	case "dcn", "DCN":
		return BadPageDCN, true
	}
	return BadPageRTN, false
}

// Config holds the tunables of a Class 1 session.
type Config struct {
	LocalID string
	// Capabilities advertised in DIS and used as the local side of
	// negotiation.
	Capabilities t30.Params

	T1 time.Duration
	T2 time.Duration
	T4 time.Duration

	TCF            t30.TCFCheck
	TCFRecvTimeout time.Duration

	PercentGoodLines       int
	MaxConsecutiveBadLines int
	BadPageHandling        BadPageHandling

	// SwitchingPause is the silence before transmitting after a receive.
	SwitchingPause time.Duration

	// RNRInterval is how long the receiver waits for the block writer before
	// sending another RNR. RNRTimeout bounds the whole flow control exchange.
	RNRInterval time.Duration
	RNRTimeout  time.Duration

	// V34 means the control channel handshake already trained the data
	// channel.
	V34 bool

	// Polling: selective polling address and password sent with DTC, and the
	// subaddress and password sent with DCS.
	PollSelector string
	PollPassword string
	Subaddress   string
	Password     string

	// PageRetries bounds retransmissions of a page answered with RTN.
	PageRetries int
	// FTTPerRate is the number of FTT accepted at a rate before stepping down.
	FTTPerRate int
}

// DefaultCapabilities is what a V.17 ECM modem typically offers.
var DefaultCapabilities = t30.Params{
	VR:  t30.VRFine,
	BR:  t30.BR14400,
	WD:  t30.WD1728,
	LN:  t30.LNUnlimited,
	DF:  t30.DFMR,
	EC:  t30.ECEnabled256,
	ST:  t30.ST0ms,
	V17: true,
}

// DefaultConfig returns the T.30 timer values and the usual quality limits.
func DefaultConfig() Config {
	return Config{
		Capabilities:           DefaultCapabilities,
		T1:                     t30.T1,
		T2:                     t30.T2,
		T4:                     t30.T4,
		TCF:                    t30.DefaultTCFCheck,
		TCFRecvTimeout:         4500 * time.Millisecond,
		PercentGoodLines:       95,
		MaxConsecutiveBadLines: 5,
		BadPageHandling:        BadPageRTN,
		SwitchingPause:         75 * time.Millisecond,
		RNRInterval:            time.Second,
		RNRTimeout:             t30.T5,
		PageRetries:            3,
		FTTPerRate:             2,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.T1 <= 0 {
		c.T1 = d.T1
	}
	if c.T2 <= 0 {
		c.T2 = d.T2
	}
	if c.T4 <= 0 {
		c.T4 = d.T4
	}
	if c.TCF.MinRun <= 0 {
		c.TCF = d.TCF
	}
	if c.TCFRecvTimeout <= 0 {
		c.TCFRecvTimeout = d.TCFRecvTimeout
	}
	if c.PercentGoodLines <= 0 {
		c.PercentGoodLines = d.PercentGoodLines
	}
	if c.MaxConsecutiveBadLines <= 0 {
		c.MaxConsecutiveBadLines = d.MaxConsecutiveBadLines
	}
	if c.RNRInterval <= 0 || c.RNRInterval > 3*time.Second {
		c.RNRInterval = d.RNRInterval
	}
	if c.RNRTimeout <= 0 {
		c.RNRTimeout = d.RNRTimeout
	}
	if c.PageRetries <= 0 {
		c.PageRetries = d.PageRetries
	}
	if c.FTTPerRate <= 0 {
		c.FTTPerRate = d.FTTPerRate
	}
}
