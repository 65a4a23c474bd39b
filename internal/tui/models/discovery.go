package models

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/allbin/go-mdt"
	"github.com/allbin/go-mdt/internal/tui/components"
	"github.com/allbin/go-mdt/internal/tui/keys"
	"github.com/allbin/go-mdt/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
)

// ScanFunc runs one discovery pass, reporting each result as it arrives.
type ScanFunc func(ctx context.Context, onResult func(mdt.ProbeResult)) ([]mdt.ProbeResult, error)

// ResultMsg carries one probe result of scan generation Gen
type ResultMsg struct {
	Gen    int
	Result mdt.ProbeResult
}

// DoneMsg ends scan generation Gen
type DoneMsg struct {
	Gen     int
	Results []mdt.ProbeResult
	Err     error
}

const (
	columnKeyClass      = "class"
	columnKeyPort       = "port"
	columnKeyModel      = "model"
	columnKeyUSB        = "usb"
	columnKeyDetail     = "detail"
	columnKeyConfidence = "confidence"
	columnKeyElapsed    = "elapsed"
)

// DiscoveryModel is the bubbletea model of the live discovery view.
type DiscoveryModel struct {
	scan ScanFunc
	ctx  context.Context

	mu     sync.Mutex
	send   func(tea.Msg)
	cancel context.CancelFunc

	gen      int
	scanning bool
	started  time.Time
	results  []mdt.ProbeResult
	err      error
	selected string

	spinner   spinner.Model
	table     table.Model
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.DiscoverKeys
	width     int
}

// NewDiscoveryModel builds the view. SetSender must be called before the
// program starts for results to stream in; without it only the final
// list is shown.
func NewDiscoveryModel(ctx context.Context, scan ScanFunc) *DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	return &DiscoveryModel{
		scan:      scan,
		ctx:       ctx,
		spinner:   s,
		table:     newResultsTable(),
		statusBar: components.NewStatusBar("MDT discovery"),
		help:      help.New(),
		keys:      keys.NewDiscoverKeys(),
	}
}

func newResultsTable() table.Model {
	columns := []table.Column{
		table.NewColumn(columnKeyClass, "Class", 14),
		table.NewColumn(columnKeyPort, "Port", 20),
		table.NewColumn(columnKeyModel, "Model", 9),
		table.NewColumn(columnKeyUSB, "VID:PID", 10),
		table.NewFlexColumn(columnKeyDetail, "Detail", 1),
		table.NewColumn(columnKeyConfidence, "Conf", 5),
		table.NewColumn(columnKeyElapsed, "Time", 8),
	}
	return table.New(columns).
		Focused(true).
		WithPageSize(15).
		WithTargetWidth(80).
		HeaderStyle(styles.HeaderStyle).
		WithBaseStyle(styles.BaseStyle).
		HighlightStyle(styles.HighlightStyle)
}

// SetSender installs the function used to push results into the program,
// normally tea.Program.Send.
func (m *DiscoveryModel) SetSender(send func(tea.Msg)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.send = send
}

// Selected returns the port chosen with enter, or "".
func (m *DiscoveryModel) Selected() string {
	return m.selected
}

// Results returns the ranked results of the last scan.
func (m *DiscoveryModel) Results() []mdt.ProbeResult {
	return m.results
}

// Err returns the enumeration error of the last scan, if any.
func (m *DiscoveryModel) Err() error {
	return m.err
}

func (m *DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startScan())
}

// startScan cancels any running scan and returns the command that runs
// the next generation.
func (m *DiscoveryModel) startScan() tea.Cmd {
	m.gen++
	m.scanning = true
	m.started = time.Now()
	m.results = nil
	m.err = nil
	m.statusBar.SetScanning(true)
	m.refreshRows()

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	send := m.send
	m.mu.Unlock()

	gen := m.gen
	return func() tea.Msg {
		results, err := m.scan(ctx, func(r mdt.ProbeResult) {
			if send != nil {
				send(ResultMsg{Gen: gen, Result: r})
			}
		})
		return DoneMsg{Gen: gen, Results: results, Err: err}
	}
}

// Stop cancels a running scan.
func (m *DiscoveryModel) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.statusBar.SetWidth(msg.Width)
		m.table = m.table.WithTargetWidth(msg.Width).WithPageSize(max(3, msg.Height-6))

	case ResultMsg:
		if msg.Gen != m.gen || !m.scanning {
			return m, nil
		}
		m.results = append(m.results, msg.Result)
		mdt.Rank(m.results)
		m.refreshRows()

	case DoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.scanning = false
		m.err = msg.Err
		if msg.Err == nil {
			m.results = msg.Results
		}
		m.statusBar.SetScanning(false)
		m.statusBar.SetError(msg.Err)
		m.statusBar.SetElapsed(time.Since(m.started))
		m.refreshRows()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.scanning {
			m.statusBar.SetElapsed(time.Since(m.started))
		}
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil

		case key.Matches(msg, m.keys.Rescan):
			if !m.scanning {
				return m, m.startScan()
			}
			return m, nil

		case key.Matches(msg, m.keys.Select):
			if m.table.TotalRows() > 0 {
				if port, ok := m.table.HighlightedRow().Data[columnKeyPort].(string); ok {
					m.selected = port
					m.Stop()
					return m, tea.Quit
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *DiscoveryModel) refreshRows() {
	var counts components.Counts
	rows := make([]table.Row, 0, len(m.results))
	for _, r := range m.results {
		counts.Add(r)
		rows = append(rows, resultRow(r))
	}
	m.statusBar.SetCounts(counts)
	m.table = m.table.WithRows(rows)
}

func resultRow(r mdt.ProbeResult) table.Row {
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

	return table.NewRow(table.RowData{
		columnKeyClass:      table.NewStyledCell(r.Class.String(), styles.ClassStyle(r.Class)),
		columnKeyPort:       r.Port,
		columnKeyModel:      r.Model,
		columnKeyUSB:        usb,
		columnKeyDetail:     detail,
		columnKeyConfidence: fmt.Sprintf("%.1f", r.Confidence),
		columnKeyElapsed:    r.Elapsed.Round(time.Millisecond).String(),
	})
}

func (m *DiscoveryModel) View() string {
	var header string
	if m.scanning {
		header = fmt.Sprintf("%s %s", m.spinner.View(), styles.InfoStyle.Render("Probing serial ports..."))
	} else if m.err != nil {
		header = styles.ErrorStyle.Render("Port enumeration failed: " + m.err.Error())
	} else if len(m.results) == 0 {
		header = styles.SubtleStyle.Render("No serial ports found")
	} else {
		header = styles.TitleStyle.Render(fmt.Sprintf("%d port(s) probed", len(m.results)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.table.View(),
		m.help.View(m.keys),
		m.statusBar.View(),
	)
}

// Run shows the discovery view until the user quits or selects a port.
func Run(ctx context.Context, scan ScanFunc) (*DiscoveryModel, error) {
	m := NewDiscoveryModel(ctx, scan)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.SetSender(p.Send)

	_, err := p.Run()
	m.Stop()
	return m, err
}
