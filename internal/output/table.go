package output

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/mcpq/mcpq/internal/clierr"
)

// Table renders human-readable output. Decoration (header underline,
// bold) only appears on a terminal and respects NO_COLOR.
type Table struct {
	NoColor bool

	// tty overrides terminal detection in tests.
	tty func() bool
}

const (
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// Format renders non-tabular data as YAML, which reads fine for humans
// and keeps detail views deterministic.
func (f *Table) Format(data interface{}) (string, error) {
	return (&YAML{}).Format(data)
}

// FormatError renders the stderr error shape. No decoration: agents
// parse this text.
func (f *Table) FormatError(err *clierr.Error) (string, error) {
	return err.Format(), nil
}

// FormatTable renders rows under headers with tabwriter alignment.
func (f *Table) FormatTable(headers []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "No results found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	if f.isTTY() {
		underlines := make([]string, len(headers))
		for i, h := range headers {
			underlines[i] = strings.Repeat("-", len(h))
		}
		fmt.Fprintln(w, strings.Join(underlines, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	out := buf.String()
	if f.isTTY() && !f.NoColor {
		// Escape codes go in after tabwriter has measured the columns,
		// or they would skew the first column's width.
		if i := strings.IndexByte(out, '\n'); i > 0 {
			out = ansiBold + out[:i] + ansiReset + out[i:]
		}
	}
	return out, nil
}

func (f *Table) isTTY() bool {
	if f.tty != nil {
		return f.tty()
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
