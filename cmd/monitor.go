// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Campbell Fabrications

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CampbellFabrications/klipper-cfs/pkg/cfs"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var monitorInterval int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live terminal dashboard for the CFS bus",
	Long: `Watch every device on the bus in a continuously updating terminal UI.

The bus is discovered first, then polled at a fixed interval. The dashboard
shows per-device readiness, filament switch states, environment readings and
link statistics. Stale readings (device stopped answering) are marked.

Keys: q or Ctrl+C to quit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorInterval, "interval", 2, "Poll interval (seconds)")
}

// Styles
var (
	monTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("57")).Padding(0, 1)
	monPanelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	monReadyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	monDownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	monStaleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	monFaintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	monHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
)

// Messages
type monitorDevicesMsg []cfs.Device
type monitorFailedMsg struct{ err error }
type monitorPollMsg struct{}
type monitorTickMsg time.Time

type monitorModel struct {
	dispatcher *cfs.Dispatcher
	connInfo   string

	spin        spinner.Model
	discovering bool
	devices     []cfs.Device
	err         error
	width       int
	quitting    bool
}

func initialMonitorModel(dispatcher *cfs.Dispatcher, connInfo string) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return monitorModel{
		dispatcher:  dispatcher,
		connInfo:    connInfo,
		spin:        s,
		discovering: true,
		width:       80,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.discoverCmd(), tea.EnterAltScreen)
}

func (m monitorModel) discoverCmd() tea.Cmd {
	return func() tea.Msg {
		devices, err := m.dispatcher.Discover(context.Background())
		if err != nil {
			return monitorFailedMsg{err: err}
		}
		return monitorDevicesMsg(devices)
	}
}

// pollCmd runs one poll round plus a sensor sweep; the dispatcher's store
// keeps the latest values for View to render.
func (m monitorModel) pollCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		m.dispatcher.Poll(ctx)
		for _, dev := range m.dispatcher.Session().Devices() {
			if dev.Readiness != cfs.ReadinessReady {
				continue
			}
			switch dev.Kind {
			case cfs.KindHub:
				m.dispatcher.ReadHubSensor(ctx)
				m.dispatcher.ReadEncoder(ctx)
			case cfs.KindBox:
				m.dispatcher.ReadBoxSensors(ctx, dev.Addr)
				m.dispatcher.ReadEnvironment(ctx, dev.Addr)
			}
		}
		return monitorPollMsg{}
	}
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Duration(monitorInterval)*time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		if m.discovering {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}

	case monitorFailedMsg:
		m.err = msg.err
		m.discovering = false
		return m, tea.Quit

	case monitorDevicesMsg:
		m.discovering = false
		m.devices = msg
		return m, m.pollCmd()

	case monitorPollMsg:
		m.devices = m.dispatcher.Session().Devices()
		return m, monitorTickCmd()

	case monitorTickMsg:
		return m, m.pollCmd()
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(monTitleStyle.Render("cfsctl monitor"))
	b.WriteString(monFaintStyle.Render("  " + m.connInfo))
	b.WriteString("\n\n")

	if m.discovering {
		b.WriteString(fmt.Sprintf("%s Discovering devices...\n", m.spin.View()))
		return b.String()
	}
	if m.err != nil {
		b.WriteString(monDownStyle.Render(fmt.Sprintf("Discovery failed: %v", m.err)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(monHeaderStyle.Render(fmt.Sprintf("Session: %s", m.dispatcher.Session().State())))
	b.WriteString("\n\n")

	var panels []string
	for _, dev := range m.devices {
		panels = append(panels, monPanelStyle.Render(m.devicePanel(dev)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...))
	b.WriteString("\n\n")

	stats := m.dispatcher.Stats().Snapshot()
	b.WriteString(monFaintStyle.Render(fmt.Sprintf(
		"sent %d  received %d  valid %d  crc %d  timeouts %d  retries %d",
		stats.FramesSent, stats.FramesReceived, stats.ValidFrames,
		stats.CRCErrors, stats.Timeouts, stats.Retries)))
	b.WriteString("\n")
	b.WriteString(monFaintStyle.Render("q: quit"))
	return b.String()
}

func (m monitorModel) devicePanel(dev cfs.Device) string {
	var b strings.Builder

	readiness := monReadyStyle.Render(dev.Readiness.String())
	if dev.Readiness != cfs.ReadinessReady {
		readiness = monDownStyle.Render(dev.Readiness.String())
	}
	fmt.Fprintf(&b, "%s 0x%02X  %s\n", monHeaderStyle.Render(dev.Kind.String()), dev.Addr, readiness)

	switch dev.Kind {
	case cfs.KindHub:
		fmt.Fprintf(&b, "buffer   %s\n", m.reading(dev.Addr, cfs.SensorBuffer))
		fmt.Fprintf(&b, "encoder  %s", m.reading(dev.Addr, cfs.SensorEncoder))
	case cfs.KindBox:
		fmt.Fprintf(&b, "gate     %s\n", m.reading(dev.Addr, cfs.SensorGate))
		for i := 0; i < cfs.SlotCount; i++ {
			fmt.Fprintf(&b, "slot %d   %s\n", i+1, m.reading(dev.Addr, cfs.SensorSlot1+cfs.SensorKind(i)))
		}
		fmt.Fprintf(&b, "humidity %s\n", m.reading(dev.Addr, cfs.SensorHumidity))
		fmt.Fprintf(&b, "temp     %s", m.reading(dev.Addr, cfs.SensorTemperature))
	}
	return b.String()
}

// reading renders a cached sensor value with its staleness.
func (m monitorModel) reading(addr byte, kind cfs.SensorKind) string {
	r := m.dispatcher.ReadSensor(addr, kind)
	switch r.Freshness {
	case cfs.Unknown:
		return monFaintStyle.Render("--")
	case cfs.Stale:
		return monStaleStyle.Render(fmt.Sprintf("%v (%s old)", r.Value, r.Age.Round(time.Second)))
	default:
		return fmt.Sprintf("%v", r.Value)
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	dispatcher, connInfo, err := OpenDispatcher()
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	m := initialMonitorModel(dispatcher, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	if fm, ok := final.(monitorModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
