package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mohsinsiddi/txscan/internal/chain"
	"github.com/Mohsinsiddi/txscan/internal/scan"
)

// Column defines a table column.
type Column struct {
	Title string
	Width int
}

// Row is a slice of cell values.
type Row []string

// Table renders a lipgloss-styled table.
type Table struct {
	Columns []Column
	Rows    []Row
	SelIdx  int // selected row index (-1 = none)
}

// NewTable creates a new table.
func NewTable(cols []Column) *Table {
	return &Table{Columns: cols, SelIdx: -1}
}

// AddRow appends a row.
func (t *Table) AddRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// pad returns s left-aligned within exactly width cells, truncating by rune.
func pad(s string, width int) string {
	if lipgloss.Width(s) > width {
		r := []rune(s)
		for len(r) > 0 && lipgloss.Width(string(r)) > width {
			r = r[:len(r)-1]
		}
		s = string(r)
	}
	return padR(s, width)
}

// Render returns the full table as a string.
// Cells are padded before styling so lipgloss never wraps them.
func (t *Table) Render() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	cellStyle := lipgloss.NewStyle().Foreground(ColorValue)
	dimStyle := lipgloss.NewStyle().Foreground(ColorMeta)

	// Header row.
	var headers []string
	for _, col := range t.Columns {
		headers = append(headers, headerStyle.Render(pad(col.Title, col.Width)))
	}
	sb.WriteString(strings.Join(headers, " "))
	sb.WriteString("\n")

	// Divider.
	var divParts []string
	for _, col := range t.Columns {
		divParts = append(divParts, dimStyle.Render(strings.Repeat("-", col.Width)))
	}
	sb.WriteString(strings.Join(divParts, " "))
	sb.WriteString("\n")

	// Data rows.
	for i, row := range t.Rows {
		var cells []string
		for j, col := range t.Columns {
			val := ""
			if j < len(row) {
				val = row[j]
			}
			if i == t.SelIdx {
				cells = append(cells, StyleSelected.Render(pad(val, col.Width)))
			} else {
				cells = append(cells, cellStyle.Render(pad(val, col.Width)))
			}
		}
		sb.WriteString(strings.Join(cells, " "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// KeyValueBlock renders a set of key-value pairs in a bordered box.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fmt.Sprintf("%-20s", p[0]+":"))
		val := StyleValue.Render(p[1])
		sb.WriteString("  " + key + " " + val + "\n")
	}
	return StyleBorder.Render(sb.String())
}

// TxColumns are the columns of the transaction table.
var TxColumns = []Column{
	{Title: "TIME", Width: 22},
	{Title: "CHAIN", Width: 10},
	{Title: "DIR", Width: 8},
	{Title: "COUNTERPARTY", Width: 13},
	{Title: "AMOUNT", Width: 20},
	{Title: "≈ USD", Width: 10},
	{Title: "STATUS", Width: 9},
	{Title: "BLOCK", Width: 10},
	{Title: "HASH", Width: 13},
}

// TxOption tunes TxTable and RunTxList.
type TxOption func(*txOptions)

type txOptions struct {
	prices Prices
}

// WithPrices values amounts at live prices instead of the placeholder.
func WithPrices(p Prices) TxOption {
	return func(o *txOptions) { o.prices = p }
}

// TxTable builds the transaction table for records, looking up native
// currency symbols in registry. The returned TxRows run parallel to the rows.
func TxTable(records []scan.Record, registry *chain.Registry, opts ...TxOption) (*Table, []TxRow) {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}
	t := NewTable(TxColumns)
	rows := make([]TxRow, 0, len(records))

	for _, r := range records {
		d, _ := registry.Describe(r.ChainID)
		symbol, decimals := "ETH", 18
		if d.NativeCurrency.Symbol != "" {
			symbol, decimals = d.NativeCurrency.Symbol, d.NativeCurrency.Decimals
		}

		counterparty := r.To
		if r.Direction == scan.Received {
			counterparty = r.From
		}
		if counterparty == "" {
			counterparty = "(contract)"
		}

		block := "-"
		if r.BlockNumber != nil {
			block = strconv.FormatUint(*r.BlockNumber, 10)
		}

		t.AddRow(Row{
			FormatTimestamp(r.Timestamp),
			r.ChainName,
			string(r.Direction),
			TruncateAddr(counterparty),
			FormatAmount(r.Value, decimals) + " " + symbol,
			FormatUSDAt(r.Value, decimals, o.prices.USD(symbol)),
			string(r.Status),
			block,
			TruncateAddr(r.Hash),
		})
		rows = append(rows, TxRow{FullHash: r.Hash, ExplorerURL: d.TxURL(r.Hash)})
	}
	return t, rows
}

// ChainRow is one line of the chain listing.
type ChainRow struct {
	Descriptor chain.Descriptor
	Endpoint   string // masked URL, empty when unconfigured
	Selected   bool
}

// ChainTable builds the chain listing table.
func ChainTable(rows []ChainRow) *Table {
	t := NewTable([]Column{
		{Title: "", Width: 1},
		{Title: "ID", Width: 8},
		{Title: "NAME", Width: 12},
		{Title: "DISPLAY", Width: 14},
		{Title: "SYMBOL", Width: 7},
		{Title: "ENDPOINT", Width: 40},
	})
	for _, r := range rows {
		mark := ""
		if r.Selected {
			mark = "*"
		}
		ep := r.Endpoint
		if ep == "" {
			ep = "not configured"
		}
		t.AddRow(Row{
			mark,
			strconv.FormatInt(r.Descriptor.ID, 10),
			r.Descriptor.Name,
			r.Descriptor.DisplayName,
			r.Descriptor.NativeCurrency.Symbol,
			ep,
		})
	}
	return t
}

// StatusText colours a transaction status.
func StatusText(s scan.Status) string {
	switch s {
	case scan.Confirmed:
		return StyleSuccess.Render(string(s))
	case scan.Failed:
		return StyleError.Render(string(s))
	default:
		return StyleWarning.Render(string(s))
	}
}

// ChainErrorLine renders one failed chain for a warning footer.
func ChainErrorLine(name string, id int64, msg string) string {
	if name == "" {
		name = "chain " + strconv.FormatInt(id, 10)
	}
	return Warn(fmt.Sprintf("%s: %s", name, trimErr(msg, 80)))
}
