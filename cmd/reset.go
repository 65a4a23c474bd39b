/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/allbin/go-mdt"
	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset <port|serial>",
	Short: "Reset the USB serial bridge of a controller",
	Long: `Perform a USB-level reset on the USB-serial bridge in front of a
controller. This recovers adapters that stop answering probes without
unplugging them.

The device will re-enumerate after reset, which may cause the port path
to change (e.g., /dev/ttyUSB0 might become /dev/ttyUSB1). Use serial
numbers to reliably identify devices after reset.

Requirements:
- usbreset utility must be installed (from usbutils package)
- Root/sudo permissions required for USB operations

Examples:
  sudo mdt reset /dev/ttyUSB0          # Reset by port path
  sudo mdt reset --serial NC7ILXW1     # Reset by serial number`,
	Args: func(cmd *cobra.Command, args []string) error {
		serialFlag, _ := cmd.Flags().GetString("serial")
		if serialFlag == "" && len(args) != 1 {
			return errors.New("requires either a port path argument or --serial flag")
		}
		if serialFlag != "" && len(args) > 0 {
			return errors.New("cannot specify both port path and --serial flag")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !mdt.IsUSBResetAvailable() {
			fmt.Fprintln(os.Stderr, "Install with: sudo apt-get install usbutils")
			return mdt.ErrUSBResetNotAvailable
		}

		serialFlag, _ := cmd.Flags().GetString("serial")

		var err error
		if serialFlag != "" {
			fmt.Printf("Resetting USB device with serial: %s\n", serialFlag)
			err = mdt.ResetUSBDeviceBySerial(serialFlag)
		} else {
			portPath := args[0]
			fmt.Printf("Resetting USB device: %s\n", portPath)
			err = mdt.ResetUSBDevice(portPath)
		}

		if err != nil {
			if errors.Is(err, mdt.ErrUSBInfoNotAvailable) {
				fmt.Fprintln(os.Stderr, "This device does not appear to be a USB device")
			}
			return err
		}

		fmt.Println("USB device reset successfully")
		fmt.Println("Device will re-enumerate (port path may change)")
		fmt.Println("\nUse 'mdt discover --table' to probe the updated device list")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringP("serial", "s", "", "Reset device by serial number")
}
