package cli

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
)

// startSpinner shows a progress spinner unless verbose logging is on, in
// which case log lines take its place. Stop prints whatever FinalMSG the
// caller set; in verbose mode cleanup prints it directly.
func (a *App) startSpinner(message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	// Ignore color errors - continue without colored spinner if it fails.
	_ = s.Color("cyan")

	if !a.verbose {
		s.Start()
	}

	cleanup := func() {
		if !a.verbose {
			s.Stop()
			return
		}
		if s.FinalMSG != "" {
			fmt.Print(s.FinalMSG)
		}
	}
	return s, cleanup
}

// formatSize renders a byte count in the nearest binary unit.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
