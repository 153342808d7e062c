// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications
//
// cfsctl - Creality CFS bus controller
//
// A CLI tool for discovering, monitoring and driving the Creality CFS
// filament management system over its RS485 bus.

package main

import (
	"fmt"
	"os"

	"github.com/CampbellFabrications/klipper-cfs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
