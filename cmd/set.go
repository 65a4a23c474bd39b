/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/styles"
	"github.com/spf13/cobra"
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set <axis> <volts>",
	Short: "Set the output voltage of one axis",
	Long: `Set the output voltage of axis x, y or z.

The value is clamped to [0, soft limit] and never exceeds 150 V. A clamped
write is reported with the value actually applied.

Examples:
  mdt set x 12.5 --port /dev/ttyUSB0
  mdt set y 40 --devices mdt_devices.json
  mdt set z 120 --soft-limit 120`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		axis, err := mdt.ParseAxis(args[0])
		if err != nil {
			return err
		}
		volts, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid voltage %q: %w", args[1], err)
		}
		readback, _ := cmd.Flags().GetBool("readback")

		out := cmd.OutOrStdout()
		return withDevice(cmd.Context(), cmd, func(c *mdt.Controller) error {
			vc, err := c.SetVoltageSafe(cmd.Context(), axis, volts)
			if err != nil {
				return err
			}

			if vc.Clamped {
				fmt.Fprintf(out, "%s %s requested %.3f V, applied %.3f V\n",
					axis, styles.ClampedStyle.Render("clamped:"), vc.Requested, vc.Applied)
			} else {
				fmt.Fprintf(out, "%s set to %.3f V\n", axis, vc.Applied)
			}

			if readback {
				v, err := c.GetVoltage(cmd.Context(), axis)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s reads %.3f V\n", axis, v)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(setCmd)

	addDeviceFlags(setCmd)
	setCmd.Flags().Bool("readback", false, "Read the axis back after writing")
}
