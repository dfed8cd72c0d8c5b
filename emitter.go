package lbstats

import (
	"context"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Emitter forwards a metric to the monitoring daemon.
type Emitter interface {
	Emit(ctx context.Context, metric Metric) error
}

// CommandRunner runs an external binary and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// GmetricEmitter hands every metric to Ganglia's gmetric binary.
type GmetricEmitter struct {
	Binary string
	run    CommandRunner
	sent   *atomic.Uint64
	failed *atomic.Uint64
}

func NewGmetricEmitter(binary string) *GmetricEmitter {
	return NewGmetricEmitterWithRunner(binary, execRunner)
}

func NewGmetricEmitterWithRunner(binary string, run CommandRunner) *GmetricEmitter {
	return &GmetricEmitter{
		Binary: binary,
		run:    run,
		sent:   atomic.NewUint64(0),
		failed: atomic.NewUint64(0),
	}
}

func GmetricArgs(metric Metric) []string {
	args := []string{
		"-t" + metric.Type,
		"-x" + strconv.Itoa(metric.TTL),
	}
	if metric.Unit != "" {
		args = append(args, "-u"+metric.Unit)
	}
	return append(args,
		"-n"+metric.Name,
		"-v"+strconv.FormatInt(metric.Value, 10),
	)
}

func (g *GmetricEmitter) Emit(ctx context.Context, metric Metric) error {
	out, err := g.run(ctx, g.Binary, GmetricArgs(metric)...)
	if err != nil {
		g.failed.Inc()
		return errors.Wrapf(err, "gmetric %s: %s", metric.Name, out)
	}
	g.sent.Inc()
	return nil
}

func (g *GmetricEmitter) Sent() uint64 {
	return g.sent.Load()
}

func (g *GmetricEmitter) Failed() uint64 {
	return g.failed.Load()
}

// LogEmitter writes metrics to a logger instead of sending them anywhere.
type LogEmitter struct {
	Logger zerolog.Logger
}

func (l *LogEmitter) Emit(_ context.Context, metric Metric) error {
	event := l.Logger.Info().
		Str("name", metric.Name).
		Str("type", metric.Type).
		Int("ttl", metric.TTL).
		Int64("value", metric.Value)
	if metric.Unit != "" {
		event = event.Str("unit", metric.Unit)
	}
	event.Msg("metric")
	return nil
}
