package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/ZontarLives/tsp-compiler/core/diag"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	posStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
)

// shouldUseColor respects the --no-color flag, the NO_COLOR convention, and
// whether stderr is a terminal at all.
func shouldUseColor(noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fileInfo, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

func severityLabel(sev diag.Severity, useColor bool) string {
	label := sev.String()
	if !useColor {
		return label
	}
	switch sev {
	case diag.Error:
		return errorStyle.Render(label)
	case diag.Warning:
		return warnStyle.Render(label)
	default:
		return infoStyle.Render(label)
	}
}

func renderRecord(r diag.Record, useColor bool) string {
	pos := fmt.Sprintf("%s:%d", r.Unit, r.Line)
	if useColor {
		pos = posStyle.Render(pos)
	}
	return fmt.Sprintf("%s: %s: %s", pos, severityLabel(r.Severity, useColor), r.Message)
}

// renderFatal formats a unit-aborting error. Parse errors already carry
// their own position prefix; file-level errors get the unit name.
func renderFatal(unit string, err error, useColor bool) string {
	label := "fatal"
	if useColor {
		label = errorStyle.Render(label)
	}
	return fmt.Sprintf("%s: %s: %v", label, unit, err)
}

func reportDiagnostics(w io.Writer, records []diag.Record, useColor bool) {
	for _, r := range records {
		fmt.Fprintln(w, renderRecord(r, useColor))
	}
}
