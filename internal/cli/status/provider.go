// Package status checks whether this machine is ready to record: privileges,
// the telemetry tool, the output directory and the configuration.
package status

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/coral-mesh/resmon/internal/config"
	"github.com/coral-mesh/resmon/internal/privilege"
	"github.com/coral-mesh/resmon/internal/sysinfo"
)

// Level grades a readiness check.
type Level string

const (
	LevelOK   Level = "ok"
	LevelWarn Level = "warn"
	LevelFail Level = "fail"
)

// Check is the result of one readiness check.
type Check struct {
	Name   string `json:"name"`
	Level  Level  `json:"level"`
	Detail string `json:"detail"`
}

// Report is the complete readiness report.
type Report struct {
	Version    string             `json:"version"`
	ConfigPath string             `json:"config_path,omitempty"`
	System     sysinfo.Descriptor `json:"system"`
	Checks     []Check            `json:"checks"`
}

// Ready reports whether no check failed.
func (r Report) Ready() bool {
	for _, c := range r.Checks {
		if c.Level == LevelFail {
			return false
		}
	}
	return true
}

// Provider runs the readiness checks.
type Provider struct {
	cfg        *config.Config
	configPath string
	detector   *sysinfo.Detector

	lookPath func(string) (string, error)
	isRoot   func() bool
}

// NewProvider creates a provider for the merged configuration.
func NewProvider(cfg *config.Config, configPath string, detector *sysinfo.Detector) *Provider {
	return &Provider{
		cfg:        cfg,
		configPath: configPath,
		detector:   detector,
		lookPath:   exec.LookPath,
		isRoot:     privilege.IsRoot,
	}
}

// Collect runs every check concurrently. Checks never return errors; a
// problem is reported as a warn or fail level.
func (p *Provider) Collect(ctx context.Context, version string) Report {
	report := Report{Version: version, ConfigPath: p.configPath}

	checks := []func() Check{
		p.checkConfig,
		p.checkPrivileges,
		p.checkTelemetry,
		p.checkOutputDir,
	}
	results := make([]Check, len(checks))

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(index int, fn func() Check) {
			defer wg.Done()
			results[index] = fn()
		}(i, check)
	}
	report.System = p.detector.Detect(ctx)
	wg.Wait()

	report.Checks = results
	return report
}

func (p *Provider) checkConfig() Check {
	c := Check{Name: "config", Level: LevelOK, Detail: "valid"}
	if err := p.cfg.Validate(); err != nil {
		c.Level = LevelFail
		c.Detail = err.Error()
		var multi *config.MultiValidationError
		if errors.As(err, &multi) {
			c.Detail = multi.Error()
		}
	}
	return c
}

func (p *Provider) checkPrivileges() Check {
	if p.isRoot() {
		return Check{Name: "privileges", Level: LevelOK, Detail: "running as root"}
	}
	level := LevelOK
	if p.cfg.Telemetry.Enabled {
		level = LevelWarn
	}
	return Check{Name: "privileges", Level: level, Detail: "not root; GPU and ANE telemetry needs sudo"}
}

func (p *Provider) checkTelemetry() Check {
	c := Check{Name: "telemetry"}
	if !p.cfg.Telemetry.Enabled {
		c.Level = LevelOK
		c.Detail = "disabled"
		return c
	}
	path, err := p.lookPath(p.cfg.Telemetry.Command)
	if err != nil {
		c.Level = LevelWarn
		c.Detail = fmt.Sprintf("%s not found; sessions will record without telemetry", p.cfg.Telemetry.Command)
		return c
	}
	c.Level = LevelOK
	c.Detail = path
	return c
}

func (p *Provider) checkOutputDir() Check {
	dir := p.cfg.Output.Dir
	c := Check{Name: "output", Level: LevelOK, Detail: dir}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.Level = LevelWarn
		c.Detail = dir + " does not exist; it will be created"
		return c
	case err != nil:
		c.Level = LevelFail
		c.Detail = err.Error()
		return c
	case !info.IsDir():
		c.Level = LevelFail
		c.Detail = dir + " is not a directory"
		return c
	}

	probe, err := os.CreateTemp(dir, ".resmon-probe-*")
	if err != nil {
		c.Level = LevelFail
		c.Detail = fmt.Sprintf("%s is not writable: %v", dir, err)
		return c
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	if abs, err := filepath.Abs(dir); err == nil {
		c.Detail = abs
	}
	return c
}
