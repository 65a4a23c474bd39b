/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/allbin/go-mdt"
	"github.com/spf13/cobra"
)

// addDeviceFlags adds the flags selecting which controller a command talks to
func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("port", "p", "", "Controller port (default: discover)")
	cmd.Flags().String("devices", "", "Pick the port from a results file written by discover --save")
}

// resolvePort returns --port, else the first confirmed port of --devices,
// else "" which makes the controller run discovery.
func resolvePort(cmd *cobra.Command) (string, error) {
	port, _ := cmd.Flags().GetString("port")
	if port != "" {
		return port, nil
	}

	devices, _ := cmd.Flags().GetString("devices")
	if devices == "" {
		return "", nil
	}
	results, err := loadResults(devices)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if r.Confirmed() {
			return r.Port, nil
		}
	}
	return "", fmt.Errorf("%w in %s", mdt.ErrNoDeviceFound, devices)
}

// withDevice connects to the selected controller, runs fn and disconnects.
func withDevice(ctx context.Context, cmd *cobra.Command, fn func(*mdt.Controller) error) error {
	port, err := resolvePort(cmd)
	if err != nil {
		return err
	}
	opts, err := controllerOptions()
	if err != nil {
		return err
	}
	return mdt.WithController(ctx, port, fn, opts...)
}
