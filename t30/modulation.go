package t30

import (
	"fmt"
	"time"
)

// T.30 timers.
const (
	T1 = 35 * time.Second
	T2 = 6 * time.Second
	T4 = 3 * time.Second
	T5 = 60 * time.Second
)

// Modulation is a Class 1 carrier selection as used by +FTM and +FRM.
type Modulation struct {
	Name    string
	BitRate int
	Code    int
}

func (m Modulation) String() string {
	return fmt.Sprintf("%s %d", m.Name, m.BitRate)
}

// V21 is the control channel.
var V21 = Modulation{Name: "V.21", BitRate: 300, Code: 3}

// ModulationFor returns the Phase C carrier for p. V.17 distinguishes long
// and short training; the others ignore short.
func ModulationFor(p Params, short bool) Modulation {
	v17 := func(rate, long int) Modulation {
		code := long
		if short {
			code++
		}
		return Modulation{Name: "V.17", BitRate: rate, Code: code}
	}
	switch p.BR {
	case BR2400:
		return Modulation{Name: "V.27ter", BitRate: 2400, Code: 24}
	case BR4800:
		return Modulation{Name: "V.27ter", BitRate: 4800, Code: 48}
	case BR7200:
		if p.V17 {
			return v17(7200, 73)
		}
		return Modulation{Name: "V.29", BitRate: 7200, Code: 72}
	case BR9600:
		if p.V17 {
			return v17(9600, 97)
		}
		return Modulation{Name: "V.29", BitRate: 9600, Code: 96}
	case BR12000:
		return v17(12000, 121)
	}
	return v17(14400, 145)
}

// StepDown returns p with the next slower rate, or false at 2400 bit/s.
func StepDown(p Params) (Params, bool) {
	if p.BR > BR14400 {
		p.BR = BR14400
		p.V17 = true
		return p, true
	}
	if p.BR <= BR2400 {
		return p, false
	}
	p.BR--
	if p.BR < BR7200 {
		p.V17 = false
	}
	return p, true
}
