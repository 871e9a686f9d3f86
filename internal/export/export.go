// Package export writes a finalized session dataset to files: the CSV table,
// a DuckDB database that accumulates sessions for later reports, and an OTLP
// JSON metrics document.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/coral-mesh/resmon/internal/constants"
	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/sysinfo"
)

// Meta describes the session a dataset belongs to.
type Meta struct {
	SessionID  string
	TargetPID  int32
	TargetName string
	// Reason is the stop reason, e.g. "duration_reached".
	Reason          string
	Interval        time.Duration
	TelemetryStatus string
	System          sysinfo.Descriptor
	Version         string
}

// Paths names the files written for one session. Base has no extension.
type Paths struct {
	Base string
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewPaths derives the output base. An explicit base is used as given, joined
// to dir when relative; otherwise the base is "<target>_monitor_<stamp>".
func NewPaths(dir, base, target string, now time.Time) Paths {
	if base == "" {
		name := unsafeNameChars.ReplaceAllString(strings.ToLower(target), "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = "process"
		}
		base = name + constants.OutputSuffix + "_" + now.Format(constants.OutputTimeLayout)
	}
	if dir != "" && !filepath.IsAbs(base) {
		base = filepath.Join(dir, base)
	}
	return Paths{Base: base}
}

// CSV returns the CSV file path.
func (p Paths) CSV() string { return p.Base + constants.CSVExtension }

// DuckDB returns the database file path.
func (p Paths) DuckDB() string { return p.Base + constants.DuckDBExtension }

// OTLP returns the OTLP JSON file path.
func (p Paths) OTLP() string { return p.Base + constants.OTLPExtension }

// createFile creates path and its parent directories.
var createFile = func(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		_ = privilege.FixFileOwnership(dir)
	}
	return os.Create(path) // #nosec G304 - path is chosen by the operator
}

// saveFile creates path and fills it through write. The close error is
// returned: it is the last point where a failed write to disk shows up.
func saveFile(path string, write func(io.Writer) error) error {
	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
