// Package record implements the 'resmon record' command.
package record

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coral-mesh/resmon/internal/annotate"
	"github.com/coral-mesh/resmon/internal/cli/helpers"
	"github.com/coral-mesh/resmon/internal/config"
	"github.com/coral-mesh/resmon/internal/constants"
	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/export"
	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/proctree"
	"github.com/coral-mesh/resmon/internal/report"
	"github.com/coral-mesh/resmon/internal/session"
	"github.com/coral-mesh/resmon/internal/sysinfo"
	"github.com/coral-mesh/resmon/internal/telemetry"
	"github.com/coral-mesh/resmon/internal/timeline"
	"github.com/coral-mesh/resmon/pkg/version"
)

type options struct {
	pid  int32
	name string
	wait bool

	interval float64
	duration float64

	output string
	dir    string

	noTelemetry      bool
	telemetryCommand string
	noAnnotations    bool
	noStatus         bool

	csv    bool
	duckdb bool
	otlp   bool
	chart  bool

	// Test seams.
	lister proctree.Lister
	stdin  io.Reader
}

// NewRecordCmd creates the record command.
func NewRecordCmd(g *helpers.GlobalFlags) *cobra.Command {
	return newRecordCmd(g, &options{})
}

func newRecordCmd(g *helpers.GlobalFlags, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the resource usage of a process tree",
		Long: `Samples memory, CPU and threads of a process and all of its descendants on a
fixed interval, together with host-wide GPU and Neural Engine telemetry from
powermetrics (requires sudo), while you work in the target application.

Type a label and press Enter at any time to annotate the timeline. Press
Ctrl+C to stop. The session also stops when --duration elapses or the target
exits. The timeline is written as CSV, DuckDB and OTLP JSON and summarized in
the terminal.

Examples:
  # Watch Phocus until Ctrl+C
  sudo resmon record --name Phocus

  # Wait for the process to start, sample every second for ten minutes
  sudo resmon record --name Phocus --wait -i 1 -d 600

  # Attach to a PID without privileged telemetry
  resmon record --pid 4242 --no-telemetry`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, opts)
		},
	}

	flags := cmd.Flags()
	flags.Int32Var(&opts.pid, "pid", 0, "PID of the process to observe")
	flags.StringVar(&opts.name, "name", "", "Observe the lowest-PID process whose name contains this text")
	flags.BoolVar(&opts.wait, "wait", false, "Wait for a process matching --name to start")
	flags.Float64VarP(&opts.interval, "interval", "i", constants.DefaultSampleInterval.Seconds(), "Sampling interval in seconds")
	flags.Float64VarP(&opts.duration, "duration", "d", 0, "Maximum duration in seconds (default: until Ctrl+C or target exit)")
	flags.StringVarP(&opts.output, "output", "o", "", "Output filename base (default: <name>_monitor_<timestamp>)")
	flags.StringVar(&opts.dir, "dir", "", "Output directory")
	flags.BoolVar(&opts.noTelemetry, "no-telemetry", false, "Do not start powermetrics")
	flags.StringVar(&opts.telemetryCommand, "telemetry-command", "", "Path of the powermetrics executable")
	flags.BoolVar(&opts.noAnnotations, "no-annotations", false, "Do not read annotations from stdin")
	flags.BoolVar(&opts.noStatus, "no-status", false, "Do not print a status line per sample")
	flags.BoolVar(&opts.csv, "csv", true, "Write the CSV export")
	flags.BoolVar(&opts.duckdb, "duckdb", true, "Write the DuckDB database")
	flags.BoolVar(&opts.otlp, "otlp", false, "Write OTLP JSON metrics")
	flags.BoolVar(&opts.chart, "chart", true, "Print the terminal chart")

	cmd.MarkFlagsMutuallyExclusive("pid", "name")

	return cmd
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("pid") {
		cfg.Target.PID = opts.pid
		cfg.Target.Name = ""
	}
	if changed("name") {
		cfg.Target.Name = opts.name
		cfg.Target.PID = 0
	}
	if changed("wait") {
		cfg.Target.Wait = opts.wait
	}
	if changed("interval") {
		cfg.Sampling.Interval = seconds(opts.interval)
	}
	if changed("duration") {
		cfg.Sampling.Duration = seconds(opts.duration)
	}
	if changed("output") {
		cfg.Output.Base = opts.output
	}
	if changed("dir") {
		cfg.Output.Dir = opts.dir
	}
	if changed("no-telemetry") {
		cfg.Telemetry.Enabled = !opts.noTelemetry
	}
	if changed("telemetry-command") {
		cfg.Telemetry.Command = opts.telemetryCommand
	}
	if changed("no-annotations") {
		cfg.Annotations.Enabled = !opts.noAnnotations
	}
	if changed("no-status") {
		cfg.Output.Status = !opts.noStatus
	}
	if changed("csv") {
		cfg.Output.CSV = opts.csv
	}
	if changed("duckdb") {
		cfg.Output.DuckDB = opts.duckdb
	}
	if changed("otlp") {
		cfg.Output.OTLP = opts.otlp
	}
	if changed("chart") {
		cfg.Output.Chart = opts.chart
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func run(cmd *cobra.Command, g *helpers.GlobalFlags, opts *options) error {
	cfg, err := g.LoadConfig()
	if err != nil {
		return rerrors.Wrap(rerrors.CodeConfigInvalid, err, "failed to load configuration")
	}
	applyFlags(cmd, opts, cfg)
	if cfg.Target.PID == 0 && cfg.Target.Name == "" {
		return rerrors.New(rerrors.CodeConfigInvalid, "a target is required: use --pid or --name")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser, err := helpers.Logger(cfg)
	if err != nil {
		return err
	}
	defer rerrors.DeferClose(zerolog.Nop(), logCloser, "failed to close log file")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	lister := opts.lister
	if lister == nil {
		lister = proctree.SystemLister
	}

	desc := sysinfo.NewDetector(logger).Detect(ctx)

	label := cfg.Target.Name
	if cfg.Target.PID != 0 {
		label = proctree.NameOf(ctx, cfg.Target.PID)
		if label == "" {
			label = fmt.Sprintf("pid%d", cfg.Target.PID)
		}
	}
	paths := export.NewPaths(cfg.Output.Dir, cfg.Output.Base, label, time.Now())

	fmt.Fprintln(out, report.Banner(report.BannerInfo{
		Version:     version.Version,
		System:      desc,
		Interval:    cfg.Sampling.Interval,
		Duration:    cfg.Sampling.Duration,
		Output:      paths.Base,
		Annotations: cfg.Annotations.Enabled,
		Telemetry:   cfg.Telemetry.Enabled,
		Root:        privilege.IsRoot(),
	}))

	target, err := resolveTarget(ctx, cfg.Target, lister, out, logger)
	if err != nil {
		return err
	}

	result, err := record(ctx, cfg, target, out, opts.stdin, logger)
	if result != nil {
		for _, w := range result.Warnings {
			fmt.Fprintln(out, report.Warning(describe(w)))
		}
	}
	if err != nil {
		return err
	}

	ds := result.Dataset
	meta := export.Meta{
		SessionID:       result.ID,
		TargetPID:       target.PID,
		TargetName:      target.Name,
		Reason:          string(result.Reason),
		Interval:        cfg.Sampling.Interval,
		TelemetryStatus: string(result.TelemetryStatus),
		System:          desc,
		Version:         version.Version,
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, report.Summary(ds, result.Reason.Describe()))
	if cfg.Output.Chart && len(ds.Samples) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, report.Chart(ds, report.ChartOptions{}))
	}

	// Outputs are written even after Ctrl+C cancelled ctx.
	return writeOutputs(context.WithoutCancel(ctx), cfg.Output, paths, ds, meta, out, logger)
}

// record runs one session against target.
func record(ctx context.Context, cfg *config.Config, target proctree.Match, out io.Writer, stdin io.Reader, logger zerolog.Logger) (*session.Result, error) {
	var telem session.TelemetrySource
	if cfg.Telemetry.Enabled {
		launcher := telemetry.NewCommandLauncher(telemetry.CommandConfig{
			Path:     cfg.Telemetry.Command,
			Args:     cfg.Telemetry.Args,
			Interval: cfg.Telemetry.Interval,
			Grace:    cfg.Sampling.ShutdownGrace,
		})
		telem = telemetry.NewReader(launcher, logger, telemetry.WithMaxRestarts(cfg.Telemetry.MaxRestarts))
	} else {
		telem = telemetry.NewDisabled("disabled by configuration")
	}

	sampler := proctree.NewSampler(target.PID, proctree.NewGopsutilTable(), proctree.NewHostProbe(), logger)

	var ctrl *session.Controller
	sessionOpts := []session.Option{}

	if cfg.Annotations.Enabled {
		reader, statusOut, err := annotationReader(cfg.Annotations, stdin)
		if err != nil {
			logger.Warn().Err(err).Msg("Annotations disabled")
		} else {
			defer rerrors.DeferClose(logger, reader, "failed to close annotation reader")
			if statusOut != nil {
				out = &lockedWriter{w: statusOut}
			}
			ch := annotate.NewChannel(reader, logger,
				annotate.WithInterruptHandler(func() { ctrl.Interrupt() }),
				annotate.WithAddedHandler(func(a timeline.Annotation) {
					fmt.Fprintln(out, report.AnnotationAdded(a))
				}),
			)
			sessionOpts = append(sessionOpts, session.WithAnnotations(ch))
		}
	}

	if cfg.Output.Status {
		sessionOpts = append(sessionOpts, session.WithSampleObserver(func(s timeline.Sample) {
			fmt.Fprintln(out, report.StatusLine(s))
		}))
	}

	ctrl = session.New(session.Config{
		Interval:      cfg.Sampling.Interval,
		Duration:      cfg.Sampling.Duration,
		ShutdownGrace: cfg.Sampling.ShutdownGrace,
	}, target.PID, sampler, telem, logger, sessionOpts...)

	fmt.Fprintln(out, "Recording started...")
	return ctrl.Run(ctx)
}

// annotationReader returns a line-editing prompt on a terminal, or a plain
// line reader otherwise. statusOut is non-nil when output must go through
// the prompt.
func annotationReader(cfg config.AnnotationsConfig, stdin io.Reader) (annotate.LineReader, io.Writer, error) {
	if stdin != nil {
		return annotate.NewStreamReader(stdin), nil, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) { // #nosec G115 - fd fits in int
		tr, err := annotate.NewTerminalReader(annotate.TerminalConfig{
			Prompt:      cfg.Prompt,
			HistoryFile: cfg.HistoryFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return tr, tr.Stdout(), nil
	}
	return annotate.NewStreamReader(os.Stdin), nil, nil
}

// resolveTarget finds the process named by the target config.
func resolveTarget(ctx context.Context, cfg config.TargetConfig, lister proctree.Lister, out io.Writer, logger zerolog.Logger) (proctree.Match, error) {
	if cfg.PID != 0 {
		m := proctree.Match{PID: cfg.PID, Name: proctree.NameOf(ctx, cfg.PID)}
		if m.Name != "" {
			fmt.Fprintln(out, report.Found(m.Name, m.PID))
		}
		// A missing PID is reported by the session as target_not_found.
		return m, nil
	}

	m, err := proctree.FindByName(ctx, lister, cfg.Name)
	if err == nil {
		fmt.Fprintln(out, report.Found(m.Name, m.PID))
		return m, nil
	}
	if !cfg.Wait || !rerrors.HasCode(err, rerrors.CodeTargetNotFound) {
		return proctree.Match{}, err
	}

	fmt.Fprintln(out, report.Waiting(cfg.Name))
	m, err = proctree.WaitForName(ctx, lister, cfg.Name, constants.DefaultTargetWaitPoll, logger)
	if err != nil {
		return proctree.Match{}, rerrors.Wrap(rerrors.CodeTargetNotFound, err, "stopped waiting for "+cfg.Name)
	}
	fmt.Fprintln(out, report.Found(m.Name, m.PID))
	return m, nil
}

func describe(err error) string {
	if code, ok := rerrors.CodeOf(err); ok {
		return fmt.Sprintf("%v [%s]", err, code)
	}
	return err.Error()
}

// lockedWriter serializes writes from the sampling and annotation goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
