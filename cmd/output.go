/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// DefaultResultsFile is written by discover --save without a file name
const DefaultResultsFile = "mdt_devices.json"

// resultsFile is the persisted form of a discovery run
type resultsFile struct {
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Probed      bool              `json:"probed" yaml:"probed"`
	Devices     []mdt.ProbeResult `json:"devices" yaml:"devices"`
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// saveResults writes results to path as YAML for .yaml/.yml and JSON
// otherwise.
func saveResults(path string, results []mdt.ProbeResult, probed bool) error {
	if results == nil {
		results = []mdt.ProbeResult{}
	}
	doc := resultsFile{GeneratedAt: time.Now().UTC(), Probed: probed, Devices: results}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		if err := writeJSON(f, doc, true); err != nil {
			return err
		}
	}
	return f.Close()
}

// loadResults reads a file written by saveResults.
func loadResults(path string) ([]mdt.ProbeResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc resultsFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc.Devices, nil
}

// renderResultsSimple prints one line per result
func renderResultsSimple(w io.Writer, results []mdt.ProbeResult) {
	for _, r := range results {
		line := fmt.Sprintf("%-20s %-14s", r.Port, r.Class)
		if r.Model != "" {
			line += " " + r.Model
		}
		if r.Error != "" {
			line += " (" + r.Error + ")"
		} else if r.Reply != "" {
			line += " reply=" + r.Reply
		}
		fmt.Fprintln(w, line)
	}
}

// renderResultsTable renders results in a styled static table format
func renderResultsTable(w io.Writer, results []mdt.ProbeResult) {
	fmt.Fprintf(w, "Found %d serial port(s):\n\n", len(results))

	portWidth := 20
	classWidth := 14
	modelWidth := 9
	usbWidth := 10
	detailWidth := 36

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("240")).
		PaddingBottom(1)

	cellStyle := lipgloss.NewStyle().
		PaddingRight(2)

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s",
		portWidth, "Port",
		classWidth, "Class",
		modelWidth, "Model",
		usbWidth, "VID:PID",
		detailWidth, "Detail")
	fmt.Fprintln(w, headerStyle.Render(header))

	for _, r := range results {
		usb := ""
		if r.Info.VendorID != "" {
			usb = r.Info.VendorID + ":" + r.Info.ProductID
		}
		detail := r.Reply
		if r.Error != "" {
			detail = r.Error
		}
		if detail == "" {
			detail = r.Info.Description
		}
		class := styles.ClassStyle(r.Class).Width(classWidth).Render(r.Class.String())
		row := fmt.Sprintf("%-*s %s %-*s %-*s %-*s",
			portWidth, r.Port,
			class,
			modelWidth, r.Model,
			usbWidth, usb,
			detailWidth, truncate(detail, detailWidth))
		fmt.Fprintln(w, cellStyle.Render(row))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
