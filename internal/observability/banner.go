package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/term"
)

const (
	ColorReset    = "\033[0m"
	ColorBold     = "\033[1m"
	ColorPurple   = "\033[35m"
	ColorNeonCyan = "\033[96m"
	ColorNeonMag  = "\033[95m"
)

// ------------------------------------------------------------
// Utility
// ------------------------------------------------------------

// TermWidth is the width of stdout, or 80 when it is not a terminal.
func TermWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal, in which
// case colors are worth emitting.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Rule returns a horizontal line as wide as the terminal (capped at 100).
func Rule() string {
	return strings.Repeat("─", clamp(TermWidth(), 20, 100))
}

// Truncate shortens s to fit n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// ------------------------------------------------------------
// Banner
// ------------------------------------------------------------

func PrintBanner(w io.Writer, version string) {
	banner := `
 _   _____________  ______________   ____
| | / / __/ _ \/  _/_  __/ _ | / __/
| |/ / _// , _// /  / / / __ |_\ \
|___/___/_/|_/___/ /_/ /_/ |_/___/

     >> ANSWERS WITH RECEIPTS <<
`

	width := TermWidth()
	color := IsTerminal()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), ColorNeonCyan, l, ColorReset)
		} else {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
		}
	}
	if version != "" {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", clamp((width-len(version))/2, 0, width)), version)
	}
}

// ------------------------------------------------------------
// Live Status
// ------------------------------------------------------------

// StatusLine renders a one-line summary of snap for the serve console.
func StatusLine(snap Snapshot) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	pulse := "HEALTHY"
	switch delta := time.Since(snap.LastHeartbeat); {
	case delta >= 90*time.Second:
		pulse = "OFFLINE"
	case delta >= 40*time.Second:
		pulse = "LAGGING"
	}

	task := snap.LastQuestion
	if task == "" {
		task = "Waiting..."
	}

	return fmt.Sprintf("[%s] %-7s | %-8s | inflight=%d served=%d rejected=%d | %s | up %s | %.1fMB",
		snap.LastHeartbeat.Format("15:04:05"),
		pulse,
		snap.LastPhase,
		snap.Inflight, snap.Served, snap.Rejected,
		Truncate(task, 25),
		snap.Uptime,
		memMB,
	)
}
