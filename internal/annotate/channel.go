// Package annotate collects operator labels from the terminal while a
// session samples in the background.
package annotate

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	rerrors "github.com/coral-mesh/resmon/internal/errors"
	"github.com/coral-mesh/resmon/internal/timeline"
)

// ErrInterrupted is returned by a LineReader when the operator pressed Ctrl+C
// while the terminal was in raw mode.
var ErrInterrupted = errors.New("annotation input interrupted")

const pendingLines = 64

// LineReader is a blocking source of operator lines. Close must unblock a
// pending Readline.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Sink stores annotations.
type Sink interface {
	AddAnnotation(label string, at time.Time) (timeline.Annotation, error)
}

type entry struct {
	label string
	at    time.Time
}

// Channel reads lines on its own goroutine and forwards them to a Sink. It
// never blocks the caller of Start or Stop beyond the Stop deadline.
type Channel struct {
	reader      LineReader
	logger      zerolog.Logger
	now         func() time.Time
	onInterrupt func()
	onAdded     func(timeline.Annotation)

	mu         sync.Mutex
	cancel     context.CancelFunc
	readerDone chan struct{}
	pumpDone   chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithInterruptHandler sets the callback run when the reader reports Ctrl+C.
func WithInterruptHandler(fn func()) Option {
	return func(c *Channel) { c.onInterrupt = fn }
}

// WithAddedHandler sets a callback run after each annotation is stored.
func WithAddedHandler(fn func(timeline.Annotation)) Option {
	return func(c *Channel) { c.onAdded = fn }
}

// WithClock overrides time.Now for annotation stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// NewChannel creates a channel around reader.
func NewChannel(reader LineReader, logger zerolog.Logger, opts ...Option) *Channel {
	c := &Channel{
		reader: reader,
		logger: logger.With().Str("component", "annotate").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins reading. Each line, including an empty one, is stamped when
// received and stored in sink with surrounding whitespace trimmed.
func (c *Channel) Start(ctx context.Context, sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readerDone != nil {
		return errors.New("annotation channel already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.readerDone = make(chan struct{})
	c.pumpDone = make(chan struct{})

	lines := make(chan entry, pendingLines)
	go c.read(runCtx, lines)
	go c.pump(runCtx, lines, sink)
	return nil
}

// Stop cancels the reader and waits for buffered lines to be stored. If the
// reader does not return before ctx expires it is abandoned and a
// shutdown_timeout error is returned.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, readerDone, pumpDone := c.cancel, c.readerDone, c.pumpDone
	c.mu.Unlock()

	if readerDone == nil {
		return nil
	}

	cancel()
	if err := c.reader.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to close annotation reader")
	}

	select {
	case <-pumpDone:
	case <-ctx.Done():
		return rerrors.Wrap(rerrors.CodeShutdownTimeout, ctx.Err(), "annotation pump did not stop")
	}

	select {
	case <-readerDone:
		return nil
	case <-ctx.Done():
		c.logger.Warn().
			Str("code", string(rerrors.CodeShutdownTimeout)).
			Msg("Annotation reader still blocked, abandoning it")
		return rerrors.Wrap(rerrors.CodeShutdownTimeout, ctx.Err(), "annotation reader did not stop")
	}
}

func (c *Channel) read(ctx context.Context, lines chan<- entry) {
	defer close(c.readerDone)

	for {
		line, err := c.reader.Readline()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch {
			case errors.Is(err, ErrInterrupted):
				c.logger.Debug().Msg("Interrupt received on annotation prompt")
				if c.onInterrupt != nil {
					c.onInterrupt()
				}
				continue
			case errors.Is(err, io.EOF):
				c.logger.Debug().Msg("Annotation input closed")
			default:
				c.logger.Warn().Err(err).Msg("Annotation input failed, annotations disabled")
			}
			return
		}

		e := entry{label: strings.TrimSpace(line), at: c.now()}
		select {
		case lines <- e:
		case <-ctx.Done():
			return
		}
	}
}

// pump stores entries until the context is cancelled, then drains what is
// already buffered.
func (c *Channel) pump(ctx context.Context, lines <-chan entry, sink Sink) {
	defer close(c.pumpDone)

	for {
		select {
		case e := <-lines:
			c.store(sink, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-lines:
					c.store(sink, e)
				default:
					return
				}
			}
		}
	}
}

func (c *Channel) store(sink Sink, e entry) {
	a, err := sink.AddAnnotation(e.label, e.at)
	if err != nil {
		c.logger.Debug().Err(err).Str("label", e.label).Msg("Annotation dropped")
		return
	}
	c.logger.Debug().Int("seq", a.Seq).Str("label", a.Label).Msg("Annotation recorded")
	if c.onAdded != nil {
		c.onAdded(a)
	}
}
