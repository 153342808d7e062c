// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Dispatcher policy flags
	responseTimeoutMs int
	retryAttempts     int

	// Address table cache
	addrCachePath string
)

var rootCmd = &cobra.Command{
	Use:   "cfsctl",
	Short: "Creality CFS bus controller",
	Long: `cfsctl - A CLI tool for driving the Creality CFS filament system over RS485.

Provides commands for device discovery, sensor readout, motor control, raw
frame logging and link quality testing against the CFS hub and filament boxes.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 230400]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the CFS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.2.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 230400, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Dispatcher policy flags
	rootCmd.PersistentFlags().IntVar(&responseTimeoutMs, "timeout", 250, "Response timeout per attempt (milliseconds)")
	rootCmd.PersistentFlags().IntVar(&retryAttempts, "retries", 3, "Write attempts per request before giving up")

	rootCmd.PersistentFlags().StringVar(&addrCachePath, "addr-cache", "", "Path for the persisted address table (CBOR)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
