package helpers

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/resmon/internal/config"
	"github.com/coral-mesh/resmon/internal/logging"
)

// GlobalFlags are the persistent flags of the root command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	Verbose    bool
}

// AddFlags registers the global flags on a persistent FlagSet.
func (g *GlobalFlags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&g.ConfigPath, "config", "", "Config file (default ~/.resmon/config.yaml, or $RESMON_CONFIG)")
	flags.StringVar(&g.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&g.LogFile, "log-file", "", "Append logs to this file instead of stderr")
	flags.BoolVarP(&g.Verbose, "verbose", "v", false, "Verbose output (debug logging)")
}

// Loader returns the config loader selected by --config.
func (g *GlobalFlags) Loader() *config.Loader {
	return config.NewLoader(g.ConfigPath)
}

// LoadConfig loads the configuration and applies the logging flags. The
// result is not validated; commands validate after their own overrides.
func (g *GlobalFlags) LoadConfig() (*config.Config, error) {
	cfg, err := g.Loader().Load()
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.Verbose {
		cfg.Logging.Level = "debug"
	}
	if g.LogFile != "" {
		cfg.Logging.File = g.LogFile
	}
	return cfg, nil
}

// Logger opens the logger described by cfg. Logs go to stderr so stdout stays
// free for command output. The closer is never nil.
func Logger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	lc := cfg.LoggingConfig()
	lc.Output = os.Stderr
	return logging.Open(lc)
}
