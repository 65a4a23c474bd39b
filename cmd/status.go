/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/styles"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the output voltages of a controller",
	Long: `Connect to a controller and print its model, backend, limits and the
present voltage of every axis.

Examples:
  mdt status --port /dev/ttyUSB0
  mdt status --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		out := cmd.OutOrStdout()
		return withDevice(cmd.Context(), cmd, func(c *mdt.Controller) error {
			st, err := c.GetDeviceStatus(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, st, true)
			}
			renderStatus(out, st)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	addDeviceFlags(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output status as JSON")
}

func renderStatus(w io.Writer, st mdt.Status) {
	state := mdt.StateDisconnected
	if st.Connected {
		state = mdt.StateConnected
	}
	fmt.Fprintf(w, "%s %s\n", styles.TitleStyle.Render(st.Port), styles.GetStatusStyle(state).Render(state.String()))
	if !st.Connected {
		return
	}

	model := st.Model
	if model == "" {
		model = "unidentified"
	}
	fmt.Fprintf(w, "  Model:         %s\n", model)
	fmt.Fprintf(w, "  Backend:       %s\n", st.Backend)
	fmt.Fprintf(w, "  Soft limit:    %.1f V (ceiling %.1f V)\n", st.Limits.Soft, st.Limits.Ceiling())
	if st.VoltageLimit > 0 {
		fmt.Fprintf(w, "  Limit switch:  %.0f V\n", st.VoltageLimit)
	}

	axes := make([]mdt.Axis, 0, len(st.CurrentVoltages))
	for a := range st.CurrentVoltages {
		axes = append(axes, a)
	}
	for _, a := range st.StaleAxes {
		if !slices.Contains(axes, a) {
			axes = append(axes, a)
		}
	}
	slices.Sort(axes)

	fmt.Fprintln(w)
	for _, a := range axes {
		v, ok := st.CurrentVoltages[a]
		stale := slices.Contains(st.StaleAxes, a)
		switch {
		case !ok:
			fmt.Fprintf(w, "  %s: %s\n", a, styles.ErrorStyle.Render("unavailable"))
		case stale:
			fmt.Fprintf(w, "  %s: %8.3f V %s\n", a, v, styles.ClampedStyle.Render("(stale)"))
		default:
			fmt.Fprintf(w, "  %s: %8.3f V\n", a, v)
		}
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "\n  Last error: %s\n", st.LastError)
	}
}
