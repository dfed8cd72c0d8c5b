package lbstats

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Collector runs one fetch, report and persist cycle.
type Collector struct {
	Source  StatsSource
	Store   *SnapshotStore
	Emitter Emitter
	Out     io.Writer
	Policy  ResetPolicy
	TTL     int
}

// NewCollector wires the collector described by config.
func NewCollector(config *Config) (*Collector, error) {
	policy, err := ParseResetPolicy(config.Emitter.ResetPolicy)
	if err != nil {
		return nil, err
	}
	var source StatsSource
	if config.Source.StatsFile != "" {
		source = &FileSource{Path: config.Source.StatsFile}
	} else {
		source = NewSocketSource(config.Source.SocketPath, time.Duration(config.Source.TimeoutSec)*time.Second)
	}
	var emitter Emitter
	if config.Emitter.DryRun {
		emitter = &LogEmitter{Logger: log.Logger}
	} else {
		emitter = NewGmetricEmitter(config.Emitter.Binary)
	}
	return &Collector{
		Source:  source,
		Store:   NewSnapshotStore(config.Storage.DataDir),
		Emitter: emitter,
		Out:     os.Stdout,
		Policy:  policy,
		TTL:     config.Emitter.TTL,
	}, nil
}

// Run fetches current stats, reports them against the previous snapshot and
// saves them as the new previous snapshot. A failed fetch leaves the stored
// snapshot untouched. Emit failures do not stop the run; they are returned
// after the snapshot is saved.
func (c *Collector) Run(ctx context.Context) error {
	lock, err := c.Store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Error().Msgf("got error while releasing data dir lock: %+v", err)
		}
	}()

	raw, err := c.Source.Fetch(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch stats")
	}
	if raw == "" {
		log.Warn().Err(ErrEmptyStats).Msg("nothing to report")
	}
	previousRaw, err := c.Store.Load()
	if err != nil {
		return err
	}
	currentHash, previousHash := xxhash.Sum64String(raw), xxhash.Sum64String(previousRaw)
	log.Debug().
		Str("current_size", humanize.Bytes(uint64(len(raw)))).
		Str("previous_size", humanize.Bytes(uint64(len(previousRaw)))).
		Uint64("current_hash", currentHash).
		Uint64("previous_hash", previousHash).
		Msg("loaded snapshots")
	if raw != "" && currentHash == previousHash {
		log.Debug().Msg("stats unchanged since previous run")
	}

	reports := Diff(Parse(raw), Parse(previousRaw), c.Policy)
	if err := WriteText(c.Out, reports); err != nil {
		log.Error().Msgf("got error while printing report: %+v", err)
	}
	emitErr := c.emit(ctx, reports)

	if err := c.Store.Save(raw); err != nil {
		return err
	}
	return emitErr
}

func (c *Collector) emit(ctx context.Context, reports []BackendReport) error {
	var failed, total int
	var firstErr error
	for _, report := range reports {
		if report.CounterReset {
			log.Warn().Msgf("byte counters of backend %s went backwards, policy %s", report.Backend, c.Policy)
		}
		for _, metric := range report.Metrics(c.TTL) {
			total++
			if err := c.Emitter.Emit(ctx, metric); err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				log.Error().Msgf("got error while emitting metric: %+v", err)
			}
		}
	}
	log.Info().Msgf("emitted %d/%d metrics for %d backends", total-failed, total, len(reports))
	if firstErr != nil {
		return errors.Wrapf(firstErr, "%d of %d metrics failed", failed, total)
	}
	return nil
}
