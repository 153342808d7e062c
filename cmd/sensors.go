// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"github.com/spf13/cobra"
)

var (
	sensorsWatch    int
	sensorsWithRFID bool
)

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "Read filament and environment sensors",
	Long: `Discover the bus, then read every sensor the devices expose.

For each filament box: the gate switch, the four post-gear slot switches and
the humidity/temperature pair. For the hub: the buffer position switch and the
measuring wheel count. With --rfid, each box slot's spool tag is read too.

Use --watch to repeat the readout at a fixed interval; readings served from
the cache between polls are tagged with their staleness.`,
	RunE: runSensors,
}

func init() {
	rootCmd.AddCommand(sensorsCmd)
	sensorsCmd.Flags().IntVar(&sensorsWatch, "watch", 0, "Repeat every N seconds (0 = read once)")
	sensorsCmd.Flags().BoolVar(&sensorsWithRFID, "rfid", false, "Also read spool RFID tags")
}

func runSensors(cmd *cobra.Command, args []string) error {
	dispatcher, connInfo, err := OpenDispatcher()
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	fmt.Printf("cfsctl - Sensor Readout\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	ctx := context.Background()
	devices, err := dispatcher.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	for {
		for _, dev := range devices {
			if err := printDeviceSensors(ctx, dispatcher, dev); err != nil {
				return err
			}
		}
		if sensorsWatch <= 0 {
			return nil
		}
		time.Sleep(time.Duration(sensorsWatch) * time.Second)
		fmt.Println()
	}
}

func printDeviceSensors(ctx context.Context, dispatcher *cfs.Dispatcher, dev cfs.Device) error {
	fmt.Printf("[%s] %s 0x%02X\n", time.Now().Format("15:04:05"), dev.Kind, dev.Addr)

	switch dev.Kind {
	case cfs.KindHub:
		buffer, err := dispatcher.ReadHubSensor(ctx)
		if err != nil {
			return reportSensorError(dispatcher, dev.Addr, "buffer", err)
		}
		fmt.Printf("  buffer:      %s\n", buffer)

		count, err := dispatcher.ReadEncoder(ctx)
		if err != nil {
			return reportSensorError(dispatcher, dev.Addr, "encoder", err)
		}
		fmt.Printf("  encoder:     %d\n", count)

	case cfs.KindBox:
		sensors, err := dispatcher.ReadBoxSensors(ctx, dev.Addr)
		if err != nil {
			return reportSensorError(dispatcher, dev.Addr, "filament", err)
		}
		fmt.Printf("  gate:        %s\n", sensors.Gate)
		for i, state := range sensors.Slots {
			fmt.Printf("  slot %d:      %s\n", i+1, state)
		}

		env, err := dispatcher.ReadEnvironment(ctx, dev.Addr)
		if err != nil {
			return reportSensorError(dispatcher, dev.Addr, "environment", err)
		}
		fmt.Printf("  humidity:    %d%%\n", env.Humidity)
		fmt.Printf("  temperature: %d°C\n", env.Temperature)

		if sensorsWithRFID {
			for slot := 0; slot < cfs.SlotCount; slot++ {
				tag, err := dispatcher.ReadRFID(ctx, dev.Addr, slot)
				if err != nil {
					return reportSensorError(dispatcher, dev.Addr, "rfid", err)
				}
				if len(tag.Tag) == 0 {
					fmt.Printf("  rfid %d:      (no tag)\n", slot+1)
				} else {
					fmt.Printf("  rfid %d:      %s\n", slot+1, cfs.HexDump(tag.Tag))
				}
			}
		}
	}
	return nil
}

// reportSensorError downgrades a timeout to a cached-value report when the
// store still holds something usable; anything else aborts the readout.
func reportSensorError(dispatcher *cfs.Dispatcher, addr byte, what string, err error) error {
	var timeout *cfs.DeviceTimeoutError
	if !errors.As(err, &timeout) {
		return err
	}
	fmt.Printf("  %s: no answer (%s)\n", what, dispatcher.DeviceStatus(addr))
	return nil
}
