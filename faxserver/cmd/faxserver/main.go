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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"gofaxmodem/faxserver"
	"gofaxmodem/gofaxlib"
)

const productName = "faxserver"

var opts struct {
	ConfigFile  string `short:"c" long:"config" default:"/etc/faxserver/config.json" description:"faxserver configuration file"`
	ShowVersion bool   `long:"version" description:"Show version information"`
}

// Version can be set at build time using:
//
//	-ldflags "-X main.version=0.42"
var version string

func init() {
	if version == "" {
		version = "development version"
	}
	version = fmt.Sprintf("%v %v", productName, version)
}

func logPanic(lm *gofaxlib.LogManager) {
	if r := recover(); r != nil {
		lm.Logger().Print(r)
		panic(r)
	}
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	lm := gofaxlib.NewLogManager(nil)
	defer logPanic(lm)

	lm.Logger().Printf("%v starting", version)
	gofaxlib.LoadConfig(opts.ConfigFile)
	if gofaxlib.Config.Log.Level != "" {
		if err := lm.SetLevel(gofaxlib.Config.Log.Level); err != nil {
			lm.Logger().Fatalf("Invalid log level: %v", err)
		}
	}

	server := faxserver.NewServer(lm)
	if err := server.Start(); err != nil {
		lm.Logger().Fatal(err)
	}
}
