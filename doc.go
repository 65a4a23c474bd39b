// Package mdt discovers and drives Thorlabs MDT-series piezo controllers
// (MDT693A/B three-axis, MDT694A/B single-axis) over a serial/USB link.
//
// The package has three layers: port discovery, a transport over either the
// vendor command library or the controller's text protocol, and a
// Controller that gates every write through voltage limits.
//
// # Discovery
//
// MDT controllers usually sit behind a generic USB-serial bridge that
// reports the bridge vendor, not Thorlabs. Discovery therefore opens each
// port and sends identification queries (never a write):
//
//	results, err := mdt.Discover(ctx, mdt.WithWorkers(8))
//	if err != nil {
//	    log.Fatal(err) // the port list itself could not be read
//	}
//	for _, r := range results {
//	    fmt.Printf("%s: %s %s\n", r.Port, r.Class, r.Model)
//	}
//
// Confirmed controllers are listed first. A port that cannot be opened is
// reported as unresponsive; one that opens but never answers as unknown.
// WithActiveProbe(false) classifies ports from vendor/product IDs only.
//
// # Controlling a device
//
//	err := mdt.WithController(ctx, "/dev/ttyUSB0", func(c *mdt.Controller) error {
//	    vc, err := c.SetVoltageSafe(ctx, mdt.AxisX, 120)
//	    if err != nil {
//	        return err
//	    }
//	    if vc.Clamped {
//	        fmt.Printf("requested %.1fV, applied %.1fV\n", vc.Requested, vc.Applied)
//	    }
//	    return nil
//	}, mdt.WithSoftLimit(100))
//
// An empty port name runs discovery and connects to the first confirmed
// controller. Only one session per port may be open in a process.
//
// # Voltage limits
//
// Every write is evaluated against a soft limit (default 100 V, set with
// WithSoftLimit or Controller.SetSoftLimit) and the 150 V hard maximum,
// which nothing overrides. Negative requests become 0 V. Clamping is always
// reported in the returned VoltageCommand.
//
// # Backends
//
// In auto mode the vendor command library (MDT_COMMAND_LIB.dll, Windows
// amd64) is used when present; otherwise the serial text protocol. A
// library that is present but fails to load is an error (ErrSDKLoad)
// unless BackendConfig.SDKFallback is set.
//
// # Error Handling
//
// Use errors.Is() with the sentinel errors:
//
//	if errors.Is(err, mdt.ErrPortBusy) {
//	    // another session in this process owns the port
//	}
//
// Failed device commands are *CommandError values carrying port, axis and
// value; they match ErrDeviceCommand.
package mdt
