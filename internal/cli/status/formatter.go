package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// OutputJSON writes the report as indented JSON.
func OutputJSON(w io.Writer, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// OutputTable writes the report in human-readable form.
func OutputTable(w io.Writer, r Report) error {
	var b strings.Builder
	b.WriteString("resmon Environment Status\n")
	b.WriteString("=========================\n\n")

	fmt.Fprintf(&b, "System:  %s\n", r.System.String())
	fmt.Fprintf(&b, "Version: resmon %s\n", r.Version)
	if r.ConfigPath != "" {
		fmt.Fprintf(&b, "Config:  %s\n", r.ConfigPath)
	}
	b.WriteString("\n")

	for _, c := range r.Checks {
		fmt.Fprintf(&b, "%s %-11s %s\n", marker(c.Level), c.Name, c.Detail)
	}
	b.WriteString("\n")

	if r.Ready() {
		b.WriteString("Ready to record.\n")
	} else {
		b.WriteString("Fix the failed checks before recording.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func marker(l Level) string {
	switch l {
	case LevelOK:
		return okStyle.Render("✓")
	case LevelWarn:
		return warnStyle.Render("!")
	default:
		return failStyle.Render("✗")
	}
}
