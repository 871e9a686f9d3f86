// Package config implements the 'resmon config' command family.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd(g *helpers.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage resmon configuration",
		Long: `Manage resmon configuration.

Configuration Priority:
  1. Command-line flags (highest)
  2. RESMON_* environment variables
  3. Config file (--config, $RESMON_CONFIG or ~/.resmon/config.yaml)
  4. Built-in defaults`,
	}

	cmd.AddCommand(newInitCmd(g))
	cmd.AddCommand(newViewCmd(g))
	cmd.AddCommand(newValidateCmd(g))

	return cmd
}

// newInitCmd creates the 'config init' command.
func newInitCmd(g *helpers.GlobalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := g.Loader()
			path := loader.Path()
			if path == "" {
				return fmt.Errorf("no config path available")
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}

			if err := loader.Save(config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// newViewCmd creates the 'config view' command.
func newViewCmd(g *helpers.GlobalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show the merged configuration",
		Long: `Display the effective configuration after the config file, environment
variables and global flags are merged over the defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == string(helpers.FormatYAML) {
				fmt.Fprintf(out, "# Source: %s\n", g.Loader().Path())
			}
			return formatter.Format(cfg, out)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatYAML, []helpers.OutputFormat{
		helpers.FormatYAML,
		helpers.FormatJSON,
	})

	return cmd
}

type validationResult struct {
	Path   string                   `json:"path"`
	Valid  bool                     `json:"valid"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd(g *helpers.GlobalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration and report every invalid setting. Exits non-zero
when the configuration is invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := g.Loader()
			result := validationResult{Path: loader.Path()}

			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			verr := cfg.Validate()
			if verr != nil {
				var multi *config.MultiValidationError
				if !errors.As(verr, &multi) {
					return verr
				}
				result.Errors = multi.Errors
			}
			result.Valid = verr == nil

			if err := outputValidation(cmd.OutOrStdout(), result, format); err != nil {
				return err
			}
			return verr
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, []helpers.OutputFormat{
		helpers.FormatTable,
		helpers.FormatJSON,
	})

	return cmd
}

func outputValidation(out io.Writer, result validationResult, format string) error {
	if format != string(helpers.FormatTable) {
		formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
		if err != nil {
			return err
		}
		return formatter.Format(result, out)
	}

	if result.Valid {
		fmt.Fprintf(out, "✓ %s is valid\n", result.Path)
		return nil
	}
	fmt.Fprintf(out, "✗ %s has %d error(s):\n", result.Path, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  - %s\n", e.Error())
	}
	return nil
}
