/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/styles"
	"github.com/spf13/cobra"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <port>",
	Short: "Probe a single port for an MDT controller",
	Long: `Open one serial port, send the identification queries and report the
classification together with the port's USB metadata.

Examples:
  mdt probe /dev/ttyUSB0
  mdt probe /dev/serial/by-id/usb-FTDI_FT232R_USB_UART_A1B2C3-if00-port0
  mdt probe COM3 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]
		jsonOut, _ := cmd.Flags().GetBool("json")

		info := mdt.PortInfo{Name: filepath.Base(portPath), Path: portPath}
		if pi, err := mdt.GetPortInfo(portPath); err == nil {
			info = *pi
		}

		p, err := newProber()
		if err != nil {
			return err
		}
		result := p.Probe(cmd.Context(), info)

		out := cmd.OutOrStdout()
		if jsonOut {
			return writeJSON(out, result, true)
		}
		renderProbeResult(out, result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Bool("json", false, "Output the result as JSON")
}

func renderProbeResult(w io.Writer, r mdt.ProbeResult) {
	info := r.Info
	fmt.Fprintf(w, "Port Information: %s\n\n", r.Port)
	fmt.Fprintf(w, "  Name:        %s\n", info.Name)
	if info.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", info.Description)
	}

	// USB Device Information
	if info.VendorID != "" || info.ProductID != "" {
		fmt.Fprintln(w, "\nUSB Device Information:")
		if info.VendorID != "" {
			fmt.Fprintf(w, "  Vendor ID:    %s\n", info.VendorID)
		}
		if info.ProductID != "" {
			fmt.Fprintf(w, "  Product ID:   %s\n", info.ProductID)
		}
		if info.SerialNumber != "" {
			fmt.Fprintf(w, "  Serial:       %s\n", info.SerialNumber)
		}
		if info.InterfaceNumber != "" {
			fmt.Fprintf(w, "  Interface:    %s\n", info.InterfaceNumber)
		}
		if info.BusNumber != "" {
			fmt.Fprintf(w, "  Bus:          %s\n", info.BusNumber)
		}
		if info.DeviceNumber != "" {
			fmt.Fprintf(w, "  Device:       %s\n", info.DeviceNumber)
		}
		if info.Manufacturer != "" {
			fmt.Fprintf(w, "  Manufacturer: %s\n", info.Manufacturer)
		}
		if info.Product != "" {
			fmt.Fprintf(w, "  Product:      %s\n", info.Product)
		}
	}

	fmt.Fprintln(w, "\nProbe:")
	fmt.Fprintf(w, "  Class:        %s\n", styles.ClassStyle(r.Class).Render(r.Class.String()))
	if r.Model != "" {
		fmt.Fprintf(w, "  Model:        %s\n", r.Model)
	}
	if r.Reply != "" {
		fmt.Fprintf(w, "  Reply:        %s\n", r.Reply)
	}
	fmt.Fprintf(w, "  Confidence:   %.1f\n", r.Confidence)
	fmt.Fprintf(w, "  Elapsed:      %s\n", r.Elapsed)
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:        %s\n", styles.ErrorStyle.Render(r.Error))
	}
}
