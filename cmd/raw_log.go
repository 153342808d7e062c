// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"github.com/spf13/cobra"
)

var captureFile string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw bus traffic in human-readable format",
	Long: `Continuously decode and display CFS frames as they arrive on the bus.

This command listens passively: it never transmits, so it can be run on a tap
of a live printer-to-CFS link. Each frame is shown with timestamp, function
name, addresses and decoded data bytes; checksum failures and framing desyncs
are shown inline.

With --capture, every raw byte is also written to a file in the one-byte-per-
line format interceptty produces, so logs diff cleanly against captures taken
on real hardware.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&captureFile, "capture", "", "Also write raw bytes to this file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	tr, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}
	defer tr.Close()

	fmt.Printf("cfsctl - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var capture *cfs.Capture
	if captureFile != "" {
		f, err := os.Create(captureFile)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		capture = cfs.NewCapture(f)
		defer capture.Close()
	}

	decoder := cfs.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := tr.Read(buf)
		if err != nil {
			// A read error on the WebSocket bridge usually means the
			// connection is permanently closed - exit gracefully
			if errors.Is(err, cfs.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		if capture != nil {
			capture.Record(cfs.DirIn, buf[:n])
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(cfs.FormatFrame(frame))
			}
		}
	}
}
