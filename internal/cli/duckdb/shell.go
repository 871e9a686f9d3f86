package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/constants"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/privilege"
)

const (
	prompt         = "duckdb> "
	continuePrompt = "    ..> "
)

var errExit = errors.New("exit")

// lineReader is the part of readline.Instance the shell loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewShellCmd creates the shell subcommand for interactive queries.
func NewShellCmd(g *helpers.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shell <file.duckdb>",
		Short: "Open an interactive SQL shell on a session database",
		Long: `Opens an interactive SQL shell on a session database. Supports command
history, multi-line queries and meta-commands.

Meta-commands:
  .tables     - List tables
  .sessions   - List recorded sessions
  .help       - Show help message
  .exit       - Exit shell (or Ctrl+D)
  .quit       - Exit shell

Example:
  duckdb> SELECT label, sample_index
      ..> FROM annotations
      ..> ORDER BY seq;`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.LoadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := helpers.Logger(cfg)
			if err != nil {
				return err
			}
			defer rerrors.DeferClose(logger, closer, "failed to close log file")

			ctx := cmd.Context()
			db, err := openFile(ctx, args[0])
			if err != nil {
				return err
			}
			defer rerrors.DeferClose(logger, db, "failed to close database")

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          prompt,
				HistoryFile:     historyFile(),
				InterruptPrompt: "^C",
				EOFPrompt:       ".exit",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize readline: %w", err)
			}
			defer rerrors.DeferClose(logger, rl, "failed to close readline")

			out := rl.Stdout()
			fmt.Fprintf(out, "DuckDB interactive shell on %s. Type '.exit' to quit, '.help' for help.\n\n", args[0])
			return runShell(ctx, db, rl, out)
		},
	}
}

func historyFile() string {
	home, err := privilege.HomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, constants.DefaultDir, "duckdb_history")
}

// runShell is the read-eval-print loop. Statements run once a line ends
// with a semicolon.
func runShell(ctx context.Context, db *sql.DB, rl lineReader, out io.Writer) error {
	var buf strings.Builder

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				buf.Reset()
				rl.SetPrompt(prompt)
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if err := handleMetaCommand(ctx, db, line, out); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(line)

		if !strings.HasSuffix(line, ";") {
			rl.SetPrompt(continuePrompt)
			continue
		}

		query := buf.String()
		buf.Reset()
		rl.SetPrompt(prompt)
		if err := executeQuery(ctx, db, query, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func handleMetaCommand(ctx context.Context, db *sql.DB, command string, out io.Writer) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case ".exit", ".quit":
		return errExit

	case ".help":
		fmt.Fprintln(out, "Meta-commands:")
		fmt.Fprintln(out, "  .tables     - List tables")
		fmt.Fprintln(out, "  .sessions   - List recorded sessions")
		fmt.Fprintln(out, "  .help       - Show this help message")
		fmt.Fprintln(out, "  .exit       - Exit shell")
		fmt.Fprintln(out, "  .quit       - Exit shell")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Query syntax:")
		fmt.Fprintln(out, "  - End queries with semicolon (;)")
		fmt.Fprintln(out, "  - Use Ctrl+C to cancel current query")
		fmt.Fprintln(out, "  - Use Ctrl+D or .exit to quit")
		return nil

	case ".tables":
		return executeQuery(ctx, db, "SELECT table_name FROM duckdb_tables() ORDER BY table_name", out)

	case ".sessions":
		return executeQuery(ctx, db,
			"SELECT id, target_name, target_pid, started_at, reason FROM sessions ORDER BY started_at DESC", out)

	default:
		return fmt.Errorf("unknown meta-command: %s (try .help)", parts[0])
	}
}

// executeQuery runs query and prints the result as a table.
func executeQuery(ctx context.Context, db *sql.DB, query string, out io.Writer) error {
	start := time.Now()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	n, err := printResultsAsTable(rows, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n(%d rows in %s)\n\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}
