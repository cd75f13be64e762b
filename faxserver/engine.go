package faxserver

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gofaxmodem/class1"
	"gofaxmodem/class2"
	"gofaxmodem/faxmodem"
	"gofaxmodem/gofaxlib"
	"gofaxmodem/modem"
	"gofaxmodem/t30"
)

// engine is a session engine bound to one call, with the modem setup it
// needs before answering or dialling.
type engine struct {
	faxmodem.FaxModem
	setup func(ctx context.Context) error
	// requestPoll is sent before dialling a polling call; nil when the
	// engine requests the document itself.
	requestPoll func(ctx context.Context) error
}

type engineOptions struct {
	id       uuid.UUID
	listener faxmodem.Listener
	trouble  t30.Trouble
	// job is nil for answered calls.
	job *FaxJob
}

// newEngine builds the engine for the modem class.
func newEngine(mc gofaxlib.ModemConfig, t modem.Transport, lm *gofaxlib.LogManager, o engineOptions) (*engine, error) {
	if o.listener == nil {
		o.listener = faxmodem.NopListener{}
	}
	switch mc.Class {
	case "", "1":
		line := class1.NewATLine(t)
		if mc.DialPrefix != "" {
			line.DialPrefix = mc.DialPrefix
		}
		e := class1.New(line, class1Config(mc, o.job),
			class1.WithNegotiator(t30.DefaultNegotiator{Trouble: o.trouble}),
			class1.WithLogManager(lm),
			class1.WithListener(o.listener),
			class1.WithSessionID(o.id),
		)
		return &engine{FaxModem: e, setup: line.Setup}, nil
	}

	d, ok := class2.DialectFor(mc.Class)
	if !ok {
		return nil, fmt.Errorf("modem %s: unsupported class %q", mc.Name, mc.Class)
	}
	e := class2.New(t, d, class2Config(mc, o.job, o.trouble),
		class2.WithLogManager(lm),
		class2.WithListener(o.listener),
		class2.WithSessionID(o.id),
	)
	return &engine{FaxModem: e, setup: e.Setup, requestPoll: e.RequestToPoll}, nil
}

func class1Config(mc gofaxlib.ModemConfig, job *FaxJob) class1.Config {
	c := gofaxlib.Config.Class1
	cfg := class1.DefaultConfig()
	cfg.LocalID = mc.LocalID
	cfg.T1 = durationOr(c.T1, cfg.T1)
	cfg.T2 = durationOr(c.T2, cfg.T2)
	cfg.T4 = durationOr(c.T4, cfg.T4)
	cfg.RNRInterval = durationOr(c.RNRInterval, cfg.RNRInterval)
	if c.TCFMaxNonZero > 0 {
		cfg.TCF.MaxNonZero = c.TCFMaxNonZero
	}
	if c.PercentGoodLines > 0 {
		cfg.PercentGoodLines = c.PercentGoodLines
	}
	if c.MaxConsecutiveBadLines > 0 {
		cfg.MaxConsecutiveBadLines = c.MaxConsecutiveBadLines
	}
	if h, ok := class1.ParseBadPageHandling(c.BadPageHandling); ok {
		cfg.BadPageHandling = h
	}
	if c.PageRetries > 0 {
		cfg.PageRetries = c.PageRetries
	}
	if c.DisableECM {
		cfg.Capabilities.EC = t30.ECDisabled
	}
	if job != nil {
		if job.Identifier != "" {
			cfg.LocalID = job.Identifier
		}
		if !job.UseECM {
			cfg.Capabilities.EC = t30.ECDisabled
		}
		if job.DisableV17 {
			cfg.Capabilities.V17 = false
		}
	}
	return cfg
}

// class2Config caps the advertised rate instead of negotiating with the
// trouble flags, since a Class 2 modem negotiates on its own.
func class2Config(mc gofaxlib.ModemConfig, job *FaxJob, tr t30.Trouble) class2.Config {
	c1, c2 := gofaxlib.Config.Class1, gofaxlib.Config.Class2
	cfg := class2.DefaultConfig()
	cfg.LocalID = mc.LocalID
	if mc.DialPrefix != "" {
		cfg.DialPrefix = mc.DialPrefix
	}
	cfg.HostQuality = c2.HostQuality
	cfg.KeepBadPages = c2.KeepBadPages
	cfg.DFBitmap = c2.DFBitmap
	if c1.PercentGoodLines > 0 {
		cfg.PercentGoodLines = c1.PercentGoodLines
	}
	if c1.MaxConsecutiveBadLines > 0 {
		cfg.MaxConsecutiveBadLines = c1.MaxConsecutiveBadLines
	}
	if c1.PageRetries > 0 {
		cfg.PageRetries = c1.PageRetries
	}
	if c1.DisableECM {
		cfg.Capabilities.EC = t30.ECDisabled
	}
	noV17 := tr.V17
	if job != nil {
		if job.Identifier != "" {
			cfg.LocalID = job.Identifier
		}
		if !job.UseECM {
			cfg.Capabilities.EC = t30.ECDisabled
		}
		noV17 = noV17 || job.DisableV17
	}
	if noV17 {
		cfg.Capabilities.V17 = false
		cfg.Capabilities.BR = min(cfg.Capabilities.BR, t30.BR9600)
	}
	return cfg
}
