// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"github.com/spf13/cobra"
)

var discoveryWindowMs int

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover and address CFS devices on the bus",
	Long: `Run the CFS auto-addressing handshake and list every device that answered.

A GET_SLAVE_INFO probe is broadcast to the bus; unaddressed devices answer on
the reserved discovery address and are then bound to stable operating
addresses with SET_SLAVE_ADDR (boxes 0x01-0x04, hub 0x05).

With --addr-cache, the resulting address table is persisted so later runs can
show which serials were bound last time.

Examples:
  # Direct serial discovery
  cfsctl discovery --port /dev/ttyUSB0

  # Through a serial-over-WebSocket bridge, keeping the address table
  cfsctl discovery --url ws://printer.local/serial --addr-cache ~/.cfs_addr

Exit codes:
  0 - Discovery successful (at least one device found)
  1 - Discovery failed (no devices or timeout)`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryWindowMs, "window", 2000, "Discovery window (milliseconds)")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	tr, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}

	policy := dispatcherPolicy()
	if discoveryWindowMs > 0 {
		policy.DiscoveryWindow = time.Duration(discoveryWindowMs) * time.Millisecond
	}
	dispatcher := cfs.NewDispatcher(tr, policy)
	defer dispatcher.Close()

	fmt.Printf("cfsctl - Device Discovery\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	if addrCachePath != "" {
		if cached, err := cfs.LoadAddrCache(addrCachePath); err == nil && len(cached) > 0 {
			fmt.Printf("Previously bound devices (%s):\n", addrCachePath)
			for _, entry := range cached {
				fmt.Printf("  0x%02X  %-7s serial %s\n",
					entry.Addr, cfs.DeviceKind(entry.Kind), cfs.HexDump(entry.Serial))
			}
			fmt.Println()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	devices, err := dispatcher.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	fmt.Printf("Found %d device(s) in %v (session %s):\n\n",
		len(devices), time.Since(start).Round(time.Millisecond), dispatcher.Session().State())
	fmt.Printf("  ADDR  KIND     READINESS     SERIAL\n")
	for _, dev := range devices {
		fmt.Printf("  0x%02X  %-7s  %-12s  %s\n",
			dev.Addr, dev.Kind, dev.Readiness, cfs.HexDump(dev.Serial))
	}

	if addrCachePath != "" {
		if err := cfs.SaveAddrCache(addrCachePath, dispatcher.Session()); err != nil {
			return fmt.Errorf("failed to save address table: %w", err)
		}
		fmt.Printf("\nAddress table saved to %s\n", addrCachePath)
	}

	return nil
}
