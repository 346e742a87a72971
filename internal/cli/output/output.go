// Package output renders query results and messages for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how results are written.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeTable    Mode = "table"
	ModeJSON     Mode = "json"
	ModeCSV      Mode = "csv"
	ModeMarkdown Mode = "markdown"
)

// Styles holds the lipgloss styles used for messages.
type Styles struct {
	Header lipgloss.Style
	Error  lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Error:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		Muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
		Accent: r.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// Renderer writes results to out and messages to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	tty    bool
	styles *Styles
}

// NewRenderer returns a renderer. ModeAuto renders tables on a terminal and
// markdown otherwise; colors are used only on a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	tty := IsTerminal(out)
	if mode == "" || mode == ModeAuto {
		mode = ModeMarkdown
		if tty {
			mode = ModeTable
		}
	}

	profile := termenv.Ascii
	if IsTerminal(errOut) {
		profile = termenv.NewOutput(errOut).EnvColorProfile()
	}
	lr := lipgloss.NewRenderer(errOut)
	lr.SetColorProfile(profile)

	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		tty:    tty,
		styles: newStyles(lr),
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // file descriptors fit in int
}

// Mode returns the resolved output mode.
func (r *Renderer) Mode() Mode { return r.mode }

// Styles returns the message styles.
func (r *Renderer) Styles() *Styles { return r.styles }

// Writer returns the result writer.
func (r *Renderer) Writer() io.Writer { return r.out }

// Rows renders a result set in the renderer's mode.
func (r *Renderer) Rows(columns []string, rows [][]any) error {
	if r.mode == ModeJSON {
		return r.json(columns, rows)
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = FormatValue(v)
		}
		t.AppendRow(tr)
	}

	switch r.mode {
	case ModeCSV:
		t.RenderCSV()
		return nil
	case ModeMarkdown:
		t.RenderMarkdown()
	default:
		t.Render()
	}
	r.Muted(rowCount(len(rows)))
	return nil
}

func (r *Renderer) json(columns []string, rows [][]any) error {
	records := make([]map[string]any, len(rows))
	for i, row := range rows {
		rec := make(map[string]any, len(columns))
		for j, c := range columns {
			rec[c] = jsonValue(row[j])
		}
		records[i] = rec
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func jsonValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}

func rowCount(n int) string {
	if n == 1 {
		return "(1 row)"
	}
	return fmt.Sprintf("(%d rows)", n)
}

// FormatValue renders a SQL value as text. NULL is written as NULL.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

// Text writes a plain line to the result writer.
func (r *Renderer) Text(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

// Header writes a styled heading to the message writer.
func (r *Renderer) Header(s string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Header.Render(s))
}

// Muted writes a dim note to the message writer.
func (r *Renderer) Muted(s string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Muted.Render(s))
}

// Success writes a highlighted note to the message writer.
func (r *Renderer) Success(s string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Accent.Render(s))
}

// Error writes err to the message writer.
func (r *Renderer) Error(err error) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render("Error:"), err.Error())
}
