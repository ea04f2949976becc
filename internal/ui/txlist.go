package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/scan"
)

// TxRow holds per-transaction data needed for interactivity.
type TxRow struct {
	FullHash    string // full 0x... hash (for copy)
	ExplorerURL string // e.g. https://etherscan.io/tx/0x...
}

// RefreshFunc reloads the records shown in the list. It runs off the UI loop.
type RefreshFunc func() ([]scan.Record, error)

type refreshedMsg struct {
	records []scan.Record
	err     error
}

// txListModel is the bubbletea model for the interactive tx table.
type txListModel struct {
	title    string
	registry *chain.Registry
	records  []scan.Record
	table    *Table
	txData   []TxRow // parallel to table.Rows
	cursor   int
	flash    string // brief feedback shown in hint bar
	refresh  RefreshFunc
	loading  bool
	opts     []TxOption
}

func newTxListModel(title string, records []scan.Record, registry *chain.Registry, refresh RefreshFunc, opts ...TxOption) txListModel {
	m := txListModel{title: title, registry: registry, refresh: refresh, opts: opts}
	m.setRecords(records)
	return m
}

func (m *txListModel) setRecords(records []scan.Record) {
	m.records = records
	m.table, m.txData = TxTable(records, m.registry, m.opts...)
	if m.cursor >= len(records) {
		m.cursor = max(0, len(records)-1)
	}
}

func (m txListModel) Init() tea.Cmd { return nil }

func (m txListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			m.flash = "Refresh failed: " + chain.UserMessage(msg.err)
			return m, nil
		}
		m.setRecords(msg.records)
		m.flash = fmt.Sprintf("Refreshed: %d transactions", len(msg.records))

	case tea.KeyMsg:
		m.flash = ""
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.table.Rows)-1 {
				m.cursor++
			}

		case "r":
			if m.refresh == nil || m.loading {
				break
			}
			m.loading = true
			m.flash = "Refreshing…"
			refresh := m.refresh
			return m, func() tea.Msg {
				recs, err := refresh()
				return refreshedMsg{records: recs, err: err}
			}

		case "o":
			if m.cursor < len(m.txData) {
				url := m.txData[m.cursor].ExplorerURL
				if url != "" {
					openBrowser(url)
					m.flash = "Opening in browser…"
				} else {
					m.flash = "No explorer URL available"
				}
			}

		case "c":
			if m.cursor < len(m.txData) {
				hash := m.txData[m.cursor].FullHash
				if hash == "" {
					m.flash = "No hash available"
					break
				}
				if err := copyToClipboard(hash); err == nil {
					m.flash = "Copied: " + TruncateAddr(hash)
				} else {
					m.flash = "Copy failed: " + err.Error()
				}
			}
		}
	}
	return m, nil
}

func (m txListModel) View() string {
	m.table.SelIdx = m.cursor

	var sb strings.Builder

	sb.WriteString(m.title)
	sb.WriteString("\n\n")

	if len(m.records) == 0 {
		sb.WriteString(StyleMeta.Render("  No transactions found in the recent block window."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(m.table.Render())
		sb.WriteString("\n")
		sb.WriteString(m.detail())
	}

	sb.WriteString("\n")
	if m.flash != "" {
		sb.WriteString(StyleSuccess.Render("  ✓ " + m.flash))
	} else {
		sb.WriteString(txControls(m.refresh != nil))
	}
	sb.WriteString("\n")

	return sb.String()
}

// detail renders the full fields of the selected record.
func (m txListModel) detail() string {
	if m.cursor >= len(m.records) {
		return ""
	}
	r := m.records[m.cursor]
	parts := []string{
		StyleMeta.Render("  hash ") + Addr(r.Hash),
		StyleMeta.Render("status ") + StatusText(r.Status),
	}
	if r.GasUsed != nil {
		parts = append(parts, StyleMeta.Render("gas used ")+strconv.FormatUint(*r.GasUsed, 10))
	}
	if r.GasPrice != nil {
		parts = append(parts, StyleMeta.Render("gas price ")+FormatAmount(*r.GasPrice, 9)+" gwei")
	}
	return strings.Join(parts, "   ") + "\n"
}

// txControls renders the consistent bottom control bar for the tx table.
func txControls(canRefresh bool) string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	sb.WriteString(StyleMeta.Render("[ ↑↓ ]"))
	sb.WriteString(StyleMeta.Render(" navigate"))
	sb.WriteString(sep)
	sb.WriteString(StyleInfo.Render("[ o ]"))
	sb.WriteString(StyleMeta.Render(" open in browser"))
	sb.WriteString(sep)
	sb.WriteString(StyleWarning.Render("[ c ]"))
	sb.WriteString(StyleMeta.Render(" copy hash"))
	if canRefresh {
		sb.WriteString(sep)
		sb.WriteString(StyleSuccess.Render("[ r ]"))
		sb.WriteString(StyleMeta.Render(" refresh"))
	}
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ]"))
	sb.WriteString(StyleMeta.Render(" quit"))
	return sb.String()
}

// RunTxList starts the interactive transaction list. Blocks until the user
// presses q/ESC. Uses the alt screen so the terminal is restored on exit.
func RunTxList(title string, records []scan.Record, registry *chain.Registry, refresh RefreshFunc, opts ...TxOption) error {
	m := newTxListModel(title, records, registry, refresh, opts...)
	p := tea.NewProgram(m, tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// openBrowser opens url in the OS default browser.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

// copyToClipboard writes text to the system clipboard.
func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "windows":
		cmd = exec.Command("clip")
	default:
		// Try wl-copy (Wayland), fall back to xclip.
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	_, _ = io.WriteString(stdin, text)
	stdin.Close()
	return cmd.Wait()
}
