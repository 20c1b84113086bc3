package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

type ansi string

const (
	ansiReset  ansi = "\033[0m"
	ansiBold   ansi = "\033[1m"
	ansiDim    ansi = "\033[2m"
	ansiRed    ansi = "\033[31m"
	ansiGreen  ansi = "\033[32m"
	ansiYellow ansi = "\033[33m"
)

var colorEnabled = true

// InitColor turns color on only when asked for, stdout is a terminal and
// NO_COLOR is unset.
func InitColor(enabled bool) {
	colorEnabled = enabled && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
}

func (c ansi) paint(s string) string {
	if !colorEnabled {
		return s
	}
	return string(c) + s + string(ansiReset)
}

func Bold(s string) string   { return ansiBold.paint(s) }
func Dim(s string) string    { return ansiDim.paint(s) }
func Red(s string) string    { return ansiRed.paint(s) }
func Green(s string) string  { return ansiGreen.paint(s) }
func Yellow(s string) string { return ansiYellow.paint(s) }

func formatBool(b bool) string {
	if b {
		return Green("yes")
	}
	return Red("no")
}

func printJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	fmt.Fprint(w, formatTable(headers, rows))
}

// formatTable lays rows out in columns two spaces apart, under a dashed
// rule. The last column is left ragged. Widths ignore color codes.
func formatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	widths := make([]int, len(headers))
	measure := func(cells []string) {
		for i := 0; i < len(cells) && i < len(widths); i++ {
			widths[i] = max(widths[i], visibleLen(cells[i]))
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}

	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("-", n)
	}

	var sb strings.Builder
	for _, cells := range append([][]string{headers, rule}, rows...) {
		last := len(headers) - 1
		for i := range last {
			sb.WriteString(padRight(cell(cells, i), widths[i]))
			sb.WriteString("  ")
		}
		sb.WriteString(cell(cells, last))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

var ansiPattern = regexp.MustCompile("\033\\[[0-9;]*m")

func stripAnsi(s string) string { return ansiPattern.ReplaceAllString(s, "") }

func visibleLen(s string) int { return len(stripAnsi(s)) }

func padRight(s string, width int) string {
	if pad := width - visibleLen(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

// formatTimestamp renders an RFC 3339 timestamp relative to now for the
// last day and as a date after that.
func formatTimestamp(ts string, now time.Time) string {
	if ts == "" {
		return Dim("-")
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}

	switch age := now.Sub(t); {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return ago(int(age.Minutes()), "minute")
	case age < 24*time.Hour:
		return ago(int(age.Hours()), "hour")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func ago(n int, unit string) string {
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}
