package helpers

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func formatNames(formats []OutputFormat) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}

// AddFormatFlag registers -f/--format with shell completion over supported.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, supported []OutputFormat) {
	names := formatNames(supported)
	cmd.Flags().StringVarP(formatVar, "format", "f", string(defaultFormat),
		fmt.Sprintf("Output format (%s)", strings.Join(names, ", ")))

	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(names, cobra.ShellCompDirectiveNoFileComp))
}

// ValidateFormat rejects formats a command does not render.
func ValidateFormat(format string, supported []OutputFormat) error {
	if slices.Contains(supported, OutputFormat(format)) {
		return nil
	}
	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(formatNames(supported), ", "))
}
