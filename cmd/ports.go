/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/allbin/go-mdt"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system without opening them.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := lister()
		if err != nil {
			return err
		}
		ports, err := l.ListPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		out := cmd.OutOrStdout()
		filtered := filterPorts(ports, filterType)
		if len(filtered) == 0 {
			if filterType != "" {
				fmt.Fprintf(out, "No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Fprintln(out, "No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderPortsTable(out, filtered)
		} else {
			for _, p := range filtered {
				fmt.Fprintln(out, p.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	portsCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterPorts filters the port list based on the specified filter type
func filterPorts(ports []mdt.PortInfo, filterType string) []mdt.PortInfo {
	if filterType == "" || filterType == "all" {
		return ports
	}

	var filtered []mdt.PortInfo
	for _, p := range ports {
		name := strings.ToLower(p.Name)
		switch strings.ToLower(filterType) {
		case "usb":
			if p.VendorID != "" || strings.HasPrefix(name, "ttyusb") || strings.HasPrefix(name, "ttyacm") {
				filtered = append(filtered, p)
			}
		case "standard":
			if strings.HasPrefix(name, "ttys") || strings.HasPrefix(name, "com") {
				filtered = append(filtered, p)
			}
		case "arm":
			if strings.HasPrefix(name, "ttyama") {
				filtered = append(filtered, p)
			}
		}
	}
	return filtered
}

// renderPortsTable renders the port list in a styled static table format
func renderPortsTable(w io.Writer, ports []mdt.PortInfo) {
	fmt.Fprintf(w, "Found %d serial port(s):\n\n", len(ports))

	portWidth := 15
	usbWidth := 10
	descWidth := 24
	productWidth := 30

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s",
		portWidth, "Port",
		usbWidth, "VID:PID",
		descWidth, "Type",
		productWidth, "Product")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, p := range ports {
		usb := ""
		if p.VendorID != "" {
			usb = p.VendorID + ":" + p.ProductID
		}
		product := strings.TrimSpace(p.Manufacturer + " " + p.Product)
		row := fmt.Sprintf("%-*s %-*s %-*s %-*s",
			portWidth, p.Name,
			usbWidth, usb,
			descWidth, p.Description,
			productWidth, truncate(product, productWidth))
		fmt.Fprintln(w, cellStyle.Render(row))
	}
}
