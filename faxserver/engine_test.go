package faxserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gofaxmodem/class1"
	"gofaxmodem/gofaxlib"
	"gofaxmodem/t30"
)

func withConfig(t *testing.T) {
	saved := gofaxlib.Config
	t.Cleanup(func() { gofaxlib.Config = saved })
}

func TestClass1Config(t *testing.T) {
	withConfig(t)
	gofaxlib.Config.Class1.T1 = "20s"
	gofaxlib.Config.Class1.TCFMaxNonZero = 20
	gofaxlib.Config.Class1.BadPageHandling = "dcn"
	gofaxlib.Config.Class1.RNRInterval = "bogus"

	mc := gofaxlib.ModemConfig{Name: "ttyS0", LocalID: "+1 555 0199"}
	cfg := class1Config(mc, nil)
	assert.Equal(t, "+1 555 0199", cfg.LocalID)
	assert.Equal(t, 20*time.Second, cfg.T1)
	assert.Equal(t, class1.DefaultConfig().T2, cfg.T2)
	assert.Equal(t, time.Second, cfg.RNRInterval)
	assert.Equal(t, 20, cfg.TCF.MaxNonZero)
	assert.Equal(t, class1.BadPageDCN, cfg.BadPageHandling)
	assert.Equal(t, t30.ECEnabled256, cfg.Capabilities.EC)
	assert.True(t, cfg.Capabilities.V17)

	job := NewFaxJob()
	job.Identifier = "ACME"
	job.UseECM = false
	job.DisableV17 = true
	cfg = class1Config(mc, job)
	assert.Equal(t, "ACME", cfg.LocalID)
	assert.Equal(t, t30.ECDisabled, cfg.Capabilities.EC)
	assert.False(t, cfg.Capabilities.V17)

	gofaxlib.Config.Class1.DisableECM = true
	cfg = class1Config(mc, nil)
	assert.Equal(t, t30.ECDisabled, cfg.Capabilities.EC)
}

func TestClass2Config(t *testing.T) {
	withConfig(t)
	gofaxlib.Config.Class2.HostQuality = true
	gofaxlib.Config.Class1.PageRetries = 5

	mc := gofaxlib.ModemConfig{Name: "ttyS1", Class: "2.0", DialPrefix: "ATDP"}
	cfg := class2Config(mc, nil, t30.Trouble{})
	assert.Equal(t, "ATDP", cfg.DialPrefix)
	assert.True(t, cfg.HostQuality)
	assert.Equal(t, 5, cfg.PageRetries)
	assert.Equal(t, t30.BR14400, cfg.Capabilities.BR)

	cfg = class2Config(mc, nil, t30.Trouble{V17: true})
	assert.False(t, cfg.Capabilities.V17)
	assert.Equal(t, t30.BR9600, cfg.Capabilities.BR)

	job := NewFaxJob()
	job.DisableV17 = true
	cfg = class2Config(mc, job, t30.Trouble{})
	assert.Equal(t, t30.BR9600, cfg.Capabilities.BR)
}

func TestNewEngineClasses(t *testing.T) {
	for _, class := range []string{"", "1", "2", "2.0"} {
		eng, err := newEngine(gofaxlib.ModemConfig{Class: class}, newLine(), nil, engineOptions{})
		assert.NoError(t, err, class)
		assert.NotNil(t, eng.setup, class)
		assert.Equal(t, class == "2" || class == "2.0", eng.requestPoll != nil, class)
	}
	_, err := newEngine(gofaxlib.ModemConfig{Name: "x", Class: "8"}, newLine(), nil, engineOptions{})
	assert.Error(t, err)
}
