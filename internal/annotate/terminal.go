package annotate

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chzyer/readline"
)

// TerminalConfig configures the interactive prompt.
type TerminalConfig struct {
	Prompt      string
	HistoryFile string
}

// TerminalReader reads annotations from the controlling terminal with line
// editing and history.
type TerminalReader struct {
	rl   *readline.Instance
	once sync.Once
	err  error
}

// NewTerminalReader puts the terminal in raw mode and returns a reader on it.
// Ctrl+C is reported as ErrInterrupted.
func NewTerminalReader(cfg TerminalConfig) (*TerminalReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}
	return &TerminalReader{rl: rl}, nil
}

// Readline blocks until the operator submits a line.
func (t *TerminalReader) Readline() (string, error) {
	line, err := t.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrInterrupted
	}
	return line, err
}

// Stdout returns a writer that prints above the prompt without corrupting it.
func (t *TerminalReader) Stdout() io.Writer {
	return t.rl.Stdout()
}

// Close restores the terminal and unblocks a pending Readline. It may be
// called more than once.
func (t *TerminalReader) Close() error {
	t.once.Do(func() { t.err = t.rl.Close() })
	return t.err
}
