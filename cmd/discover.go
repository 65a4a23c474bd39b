/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find MDT controllers on the serial ports",
	Long: `Enumerate the serial ports of this system and probe each one for an MDT
piezo controller.

Probing opens every port and sends identification queries only (id?,
*IDN?, xvoltage?, XR?). No voltage is ever written. Ports are probed in
parallel; each probe is bounded by --timeout.

Every port is reported with a classification:
  confirmed-mdt   an MDT controller answered
  unknown         the port opened but the reply was not recognized
  unresponsive    the port could not be opened

With --no-probe, ports are classified from USB vendor/product IDs alone.

Example usage:
  mdt discover
  mdt discover --table
  mdt discover --json --pretty
  mdt discover --save mdt_devices.yaml
  mdt discover --tui`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noProbe, _ := cmd.Flags().GetBool("no-probe")
		jsonOut, _ := cmd.Flags().GetBool("json")
		pretty, _ := cmd.Flags().GetBool("pretty")
		tableFormat, _ := cmd.Flags().GetBool("table")
		useTUI, _ := cmd.Flags().GetBool("tui")
		savePath, _ := cmd.Flags().GetString("save")

		opts, err := discoveryOptions(mdt.WithActiveProbe(!noProbe))
		if err != nil {
			return err
		}

		var results []mdt.ProbeResult
		if useTUI {
			results, err = discoverTUI(cmd.Context(), opts)
			if err != nil {
				return err
			}
		} else {
			results, err = mdt.Discover(cmd.Context(), opts...)
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case jsonOut:
				if results == nil {
					results = []mdt.ProbeResult{}
				}
				if err := writeJSON(out, results, pretty); err != nil {
					return err
				}
			case len(results) == 0:
				fmt.Fprintln(out, "No serial ports found")
			case tableFormat:
				renderResultsTable(out, results)
			default:
				renderResultsSimple(out, results)
			}
		}

		if savePath != "" {
			if err := saveResults(savePath, results, !noProbe); err != nil {
				return fmt.Errorf("saving results: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Results saved to %s\n", savePath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().Bool("no-probe", false, "Classify from USB identifiers only, without opening ports")
	discoverCmd.Flags().Bool("json", false, "Output results as JSON")
	discoverCmd.Flags().Bool("pretty", false, "Indent JSON output")
	discoverCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
	discoverCmd.Flags().Bool("tui", false, "Show results live in an interactive view")
	discoverCmd.Flags().String("save", "", "Save results to a file (.json, .yaml)")
	discoverCmd.Flags().Lookup("save").NoOptDefVal = DefaultResultsFile
	discoverCmd.Flags().IntP("workers", "w", mdt.DefaultWorkers, "Number of ports probed in parallel")
	discoverCmd.Flags().Duration("timeout", time.Second, "Probe budget per port")

	_ = viper.BindPFlag("discovery.workers", discoverCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("probe.timeout", discoverCmd.Flags().Lookup("timeout"))
}

// discoverTUI runs discovery inside the interactive view. A selected port
// is printed on stdout so the view can feed scripts.
func discoverTUI(ctx context.Context, opts []mdt.DiscoveryOption) ([]mdt.ProbeResult, error) {
	scan := func(ctx context.Context, onResult func(mdt.ProbeResult)) ([]mdt.ProbeResult, error) {
		d, err := mdt.NewDiscoverer(append(slices.Clip(opts), mdt.WithOnResult(onResult))...)
		if err != nil {
			return nil, err
		}
		return d.Discover(ctx)
	}

	m, err := models.Run(ctx, scan)
	if err != nil {
		return nil, err
	}
	if m.Err() != nil {
		return nil, fmt.Errorf("discovery failed: %w", m.Err())
	}
	if port := m.Selected(); port != "" {
		fmt.Println(port)
	}
	return m.Results(), nil
}
