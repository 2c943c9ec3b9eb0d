// Package replay paces captured log lines back out at a configurable
// multiple of their original timing.
package replay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ashgrove-sec/banbench/internal/clock"
	"github.com/ashgrove-sec/banbench/internal/logsource"
)

// Source is the line stream a Pacer drains. *logsource.Source satisfies it.
type Source interface {
	Next() bool
	Line() logsource.Line
	Err() error
}

// Options tune a replay run.
type Options struct {
	// SpeedFactor divides every inter-line gap. 600 compresses ten
	// minutes of log time into one second of wall time.
	SpeedFactor float64
	// SleepCap bounds a single scaled sleep. Zero disables sleeping
	// entirely, replaying as fast as the sink accepts lines.
	SleepCap time.Duration
	// StatusEvery logs progress after that many emissions. Zero disables
	// progress logging.
	StatusEvery int
	// MaxLines stops the run after that many emissions. Zero means all.
	MaxLines int
}

// Pacer walks a line source and emits every line into a sink, sleeping the
// scaled original gap between consecutive lines.
type Pacer struct {
	sink   Sink
	clock  clock.Clock
	logger *zap.Logger
	opts   Options
}

// NewPacer creates a pacer emitting into sink. The speed factor must be
// positive; a nil logger disables progress reporting.
func NewPacer(sink Sink, c clock.Clock, logger *zap.Logger, opts Options) (*Pacer, error) {
	if opts.SpeedFactor <= 0 {
		return nil, fmt.Errorf("speed factor must be positive, got %v", opts.SpeedFactor)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pacer{sink: sink, clock: c, logger: logger, opts: opts}, nil
}

// Run drains src through the sink and returns the number of lines emitted.
// The count is also valid when an error cut the run short. Sleeps happen
// only between lines whose timestamps strictly increase; the first line is
// emitted immediately.
func (p *Pacer) Run(ctx context.Context, src Source) (int, error) {
	emitted := 0
	var last time.Time
	start := p.clock.Now()

	for src.Next() {
		line := src.Line()
		if !last.IsZero() {
			if delta := line.Timestamp.Sub(last); delta > 0 {
				if err := p.sleep(ctx, p.scale(delta)); err != nil {
					return emitted, err
				}
			}
		}
		if err := p.sink.Emit(ctx, line.Raw); err != nil {
			return emitted, err
		}
		emitted++
		last = line.Timestamp

		if p.opts.StatusEvery > 0 && emitted%p.opts.StatusEvery == 0 {
			p.logger.Info("replay progress",
				zap.Int("emitted", emitted),
				zap.Time("last_ts", last),
				zap.Duration("elapsed", p.clock.Since(start)),
			)
		}
		if p.opts.MaxLines > 0 && emitted >= p.opts.MaxLines {
			break
		}
	}
	if err := src.Err(); err != nil {
		return emitted, err
	}
	p.logger.Info("replay finished", zap.Int("emitted", emitted))
	return emitted, nil
}

// scale turns a log-time gap into wall-clock sleep time.
func (p *Pacer) scale(delta time.Duration) time.Duration {
	scaled := time.Duration(float64(delta) / p.opts.SpeedFactor)
	if scaled > p.opts.SleepCap {
		scaled = p.opts.SleepCap
	}
	return scaled
}

func (p *Pacer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}
