// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"github.com/spf13/cobra"
)

var (
	pingAddr  int
	pingCount int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link with COMMUNICATION_TEST round trips",
	Long: `Send COMMUNICATION_TEST frames to one device and check the echoed payload.

Each ping carries a random payload; the device must echo it back byte for
byte. This verifies the whole path: the serial adapter or WebSocket bridge,
the bus wiring, and the device's frame handling.

Exit codes:
  0 - All pings answered with a matching echo
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingAddr, "addr", cfs.AddressBox1, "Target device address")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	dispatcher, connInfo, err := OpenDispatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dispatcher.Close()

	fmt.Printf("cfsctl - Communication Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: 0x%02X\n", pingAddr)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	ctx := context.Background()
	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		payload := make([]byte, 8)
		rand.Read(payload)

		startTime := time.Now()
		ok, err := dispatcher.Ping(ctx, byte(pingAddr), payload)
		rtt := time.Since(startTime)

		switch {
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		case !ok:
			fmt.Printf("ECHO MISMATCH (rtt=%v)\n", rtt.Round(time.Millisecond))
			failCount++
		default:
			fmt.Printf("echo from 0x%02X, rtt=%v\n", pingAddr, rtt.Round(time.Millisecond))
			successCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d echoes received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
