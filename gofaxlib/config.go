// This file is part of the GOfax.IP project - https://github.com/gonicus/gofaxip
// Copyright (C) 2014 GONICUS GmbH, Germany - http://www.gonicus.de
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2
// of the License.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program; if not, write to the Free Software
// Foundation, Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package gofaxlib

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
)

var (
	// Config is the global configuration struct
	Config config
)

// ModemConfig describes one fax modem line.
type ModemConfig struct {
	Name       string `json:"Name"`
	Device     string `json:"Device"`
	Baud       int    `json:"Baud"`
	Class      string `json:"Class"` // "1", "2" or "2.0"
	LocalID    string `json:"LocalID"`
	DialPrefix string `json:"DialPrefix"`
	// Receive answers incoming calls on this line.
	Receive bool `json:"Receive"`
	// Rings before answering.
	Rings int `json:"Rings"`
}

type config struct {
	Modems []ModemConfig `json:"Modems"`
	Class1 struct {
		T1                     string `json:"T1"`
		T2                     string `json:"T2"`
		T4                     string `json:"T4"`
		TCFMaxNonZero          int    `json:"TCFMaxNonZero"` // percent
		PercentGoodLines       int    `json:"PercentGoodLines"`
		MaxConsecutiveBadLines int    `json:"MaxConsecutiveBadLines"`
		BadPageHandling        string `json:"BadPageHandling"`
		RNRInterval            string `json:"RNRInterval"`
		DisableECM             bool   `json:"DisableECM"`
		PageRetries            int    `json:"PageRetries"`
	} `json:"Class1"`
	Class2 struct {
		HostQuality  bool `json:"HostQuality"`
		KeepBadPages bool `json:"KeepBadPages"`
		DFBitmap     bool `json:"DFBitmap"`
	} `json:"Class2"`
	Receive struct {
		SpoolDir       string `json:"SpoolDir"`
		FileNameFormat string `json:"FileNameFormat"` // strftime pattern
		PDF            bool   `json:"PDF"`
		Notify         bool   `json:"Notify"`
	} `json:"Receive"`
	Sending struct {
		QueueDir      string   `json:"QueueDir"`
		TempDir       string   `json:"TempDir"`
		PollInterval  string   `json:"PollInterval"`
		RetryAttempts string   `json:"RetryAttempts"`
		RetryDelay    string   `json:"RetryDelay"`
		Dialplan      []string `json:"Dialplan"` // "pattern=replacement"

		DisableV17AfterRetry string `json:"DisableV17AfterRetry"`
		DisableECMAfterRetry string `json:"DisableECMAfterRetry"`
	} `json:"Sending"`
	Database struct {
		Enabled  bool   `json:"Enabled"`
		Host     string `json:"Host"`
		Port     string `json:"Port"`
		User     string `json:"User"`
		Password string `json:"Password"`
		Database string `json:"Database"`
	} `json:"Database"`
	SMTP struct {
		Host        string `json:"Host"`
		Port        int    `json:"Port"`
		Username    string `json:"Username"`
		Password    string `json:"Password"`
		FromAddress string `json:"FromAddress"`
		FromName    string `json:"FromName"`
		NotifyTo    string `json:"NotifyTo"`
	} `json:"SMTP"`
	Hylafax struct {
		Xferfaxlog string `json:"Xferfaxlog"`
	} `json:"Hylafax"`
	Log struct {
		Level string `json:"Level"`
	} `json:"Log"`
}

// LoadConfig loads the configuration from a JSON file.
func LoadConfig(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		log.Fatalf("Config: unable to open file: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Fatalf("Config: unable to read file: %v", err)
	}

	if err := ParseConfig(data); err != nil {
		log.Fatalf("Config: %v", err)
	}
}

// ParseConfig replaces the global configuration with the JSON in data.
func ParseConfig(data []byte) error {
	var c config
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("unable to parse JSON: %w", err)
	}
	for i, m := range c.Modems {
		if m.Device == "" {
			return fmt.Errorf("modem %d: no device", i)
		}
		if m.Name == "" {
			c.Modems[i].Name = fmt.Sprintf("modem%d", i)
		}
		if m.Baud == 0 {
			c.Modems[i].Baud = 115200
		}
		switch m.Class {
		case "":
			c.Modems[i].Class = "1"
		case "1", "2", "2.0":
		default:
			return fmt.Errorf("modem %s: unsupported class %q", m.Device, m.Class)
		}
	}
	Config = c
	return nil
}
