// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Prints the configuration registers of the Razor's ADXL345 and ITG-3200.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/relabs-tech/gait_computer/internal/config"
	"github.com/relabs-tech/gait_computer/internal/sensors"
)

func main() {
	configPath := flag.String("config", "gait_config.txt", "path to the KEY=VALUE configuration file")
	fields := flag.Bool("fields", false, "print bit field descriptions")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	bus, closeBus, err := sensors.OpenI2C(config.Get().I2CBus)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer closeBus()

	for _, v := range sensors.DumpRegisters(bus, sensors.RazorRegisterMap()) {
		fmt.Println(v)
		if !*fields {
			continue
		}
		for _, f := range v.BitFields {
			fmt.Printf("    [%-3s] %-10s %s (%s)\n", f.Bits, f.Name, f.Description, f.Values)
		}
	}
}
