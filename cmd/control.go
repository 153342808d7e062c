// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"github.com/spf13/cobra"
)

var (
	controlBox   int
	controlSlot  int
	controlSpeed int
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Drive CFS feed gears and the hub extruder motor",
	Long: `Send motor control commands to a filament box or the hub.

The bus is discovered first so commands only go to devices that answered the
addressing handshake. Motor actions are stop, forward and reverse; speed is a
percentage of the maximum gear speed.

Examples:
  # Feed slot 2 of box 1 forward at half speed
  cfsctl control gear forward --box 1 --slot 2 --speed 50

  # Stop the hub's connection motor
  cfsctl control extruder stop --port /dev/ttyUSB0`,
}

var gearCmd = &cobra.Command{
	Use:       "gear {stop|forward|reverse}",
	Short:     "Drive one slot's feed gear",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"stop", "forward", "reverse"},
	RunE:      runGear,
}

var extruderCmd = &cobra.Command{
	Use:       "extruder {stop|forward|reverse}",
	Short:     "Drive the hub's connection motor",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"stop", "forward", "reverse"},
	RunE:      runExtruder,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.AddCommand(gearCmd)
	controlCmd.AddCommand(extruderCmd)

	gearCmd.Flags().IntVar(&controlBox, "box", 1, "Box number (1-4)")
	gearCmd.Flags().IntVar(&controlSlot, "slot", 1, "Slot number (1-4)")
	gearCmd.Flags().IntVar(&controlSpeed, "speed", 50, "Speed in percent (0-100)")
	extruderCmd.Flags().IntVar(&controlSpeed, "speed", 50, "Speed in percent (0-100)")
}

func parseMotorAction(s string) (int, error) {
	switch strings.ToLower(s) {
	case "stop":
		return cfs.MotorStop, nil
	case "forward":
		return cfs.MotorForward, nil
	case "reverse":
		return cfs.MotorReverse, nil
	}
	return 0, fmt.Errorf("unknown motor action %q", s)
}

// controlSession discovers the bus and hands the dispatcher to fn.
func controlSession(fn func(ctx context.Context, d *cfs.Dispatcher) error) error {
	dispatcher, connInfo, err := OpenDispatcher()
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := dispatcher.Discover(ctx); err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	fmt.Printf("Connection: %s (session %s)\n", connInfo, dispatcher.Session().State())

	return fn(ctx, dispatcher)
}

func runGear(cmd *cobra.Command, args []string) error {
	action, err := parseMotorAction(args[0])
	if err != nil {
		return err
	}
	if controlBox < 1 || controlBox > cfs.MaxBoxes {
		return fmt.Errorf("box must be 1-%d", cfs.MaxBoxes)
	}
	if controlSlot < 1 || controlSlot > cfs.SlotCount {
		return fmt.Errorf("slot must be 1-%d", cfs.SlotCount)
	}

	return controlSession(func(ctx context.Context, d *cfs.Dispatcher) error {
		addr := byte(cfs.AddressBox1 + controlBox - 1)
		if err := d.GearControl(ctx, addr, controlSlot-1, action, controlSpeed); err != nil {
			return err
		}
		fmt.Printf("Box %d slot %d: %s at %d%%\n", controlBox, controlSlot, args[0], controlSpeed)
		return nil
	})
}

func runExtruder(cmd *cobra.Command, args []string) error {
	action, err := parseMotorAction(args[0])
	if err != nil {
		return err
	}

	return controlSession(func(ctx context.Context, d *cfs.Dispatcher) error {
		if err := d.ExtruderControl(ctx, action, controlSpeed); err != nil {
			return err
		}
		fmt.Printf("Hub extruder: %s at %d%%\n", args[0], controlSpeed)
		return nil
	})
}
