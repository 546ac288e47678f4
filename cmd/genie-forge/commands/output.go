package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if len(header) > 0 {
		t.AppendHeader(table.Row(header))
	}
	return t
}

// summaryLine prints the closing line of a multi-item command.
func summaryLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, "\n"+format+"\n", args...)
}

// failuresError is returned by commands that completed with failed items,
// so the process exits non-zero after printing its summary.
func failuresError(n int, what string) error {
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%d %s failed", n, what)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinChanges(changes []string) string {
	if len(changes) == 0 {
		return ""
	}
	return strings.Join(changes, ", ")
}
