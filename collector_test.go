package lbstats

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	raw string
	err error
}

func (s *staticSource) Fetch(context.Context) (string, error) {
	return s.raw, s.err
}

type recordingEmitter struct {
	metrics []Metric
	failOn  string
}

func (r *recordingEmitter) Emit(_ context.Context, metric Metric) error {
	r.metrics = append(r.metrics, metric)
	if metric.Name == r.failOn {
		return errors.New("gmetric failed")
	}
	return nil
}

func (r *recordingEmitter) value(name string) (int64, bool) {
	for _, m := range r.metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

func newTestCollector(t *testing.T, source StatsSource, emitter Emitter) (*Collector, *bytes.Buffer) {
	var out bytes.Buffer
	return &Collector{
		Source:  source,
		Store:   NewSnapshotStore(t.TempDir()),
		Emitter: emitter,
		Out:     &out,
		Policy:  ResetClamp,
		TTL:     DefaultTTL,
	}, &out
}

func snapshotWithBytes(kbIn string) string {
	return statTable(
		statRow("web", "FRONTEND", map[int]string{colRate: "50", colBytesIn: kbIn}),
		statRow("web", "srv1", map[int]string{colCurSessions: "5", colStatus: "UP"}),
		statRow("web", "srv2", map[int]string{colCurSessions: "1", colStatus: "DOWN"}),
		statRow("web", "BACKEND", map[int]string{colRate: "100", colBytesIn: kbIn}),
	)
}

func TestCollectorRun(t *testing.T) {
	source := &staticSource{raw: snapshotWithBytes("307200")}
	emitter := &recordingEmitter{}
	collector, out := newTestCollector(t, source, emitter)

	require.NoError(t, collector.Run(context.Background()))
	v, ok := emitter.value("lb_web_kbytes_in")
	require.True(t, ok)
	assert.Equal(t, int64(300), v)
	assert.Len(t, emitter.metrics, 5+9)
	assert.Contains(t, out.String(), "Backend total\n")
	assert.Contains(t, out.String(), "Backend web\n")

	saved, err := collector.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, source.raw, saved)

	// second run diffs against the saved snapshot
	source.raw = snapshotWithBytes("512000")
	emitter.metrics = nil
	require.NoError(t, collector.Run(context.Background()))
	v, _ = emitter.value("lb_web_kbytes_in")
	assert.Equal(t, int64(200), v)
	v, _ = emitter.value("lb_total_kbytes_in")
	assert.Equal(t, int64(200), v)
	v, _ = emitter.value("lb_web_avg_sess_per_server")
	assert.Equal(t, int64(3), v)
	v, _ = emitter.value("lb_web_servers_down")
	assert.Equal(t, int64(1), v)
}

func TestCollectorCounterReset(t *testing.T) {
	source := &staticSource{raw: snapshotWithBytes("512000")}
	emitter := &recordingEmitter{}
	collector, _ := newTestCollector(t, source, emitter)
	require.NoError(t, collector.Store.Save(snapshotWithBytes("1024000")))

	require.NoError(t, collector.Run(context.Background()))
	v, _ := emitter.value("lb_web_kbytes_in")
	assert.Equal(t, int64(0), v)
}

func TestCollectorEmptyStats(t *testing.T) {
	emitter := &recordingEmitter{}
	collector, out := newTestCollector(t, &staticSource{}, emitter)
	require.NoError(t, collector.Store.Save(snapshotWithBytes("1024")))

	require.NoError(t, collector.Run(context.Background()))
	assert.Empty(t, emitter.metrics)
	assert.Empty(t, out.String())
	saved, err := collector.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, "", saved)
}

func TestCollectorFetchErrorKeepsSnapshot(t *testing.T) {
	emitter := &recordingEmitter{}
	collector, _ := newTestCollector(t, &staticSource{err: errors.New("connection refused")}, emitter)
	require.NoError(t, collector.Store.Save("kept"))

	require.Error(t, collector.Run(context.Background()))
	saved, err := collector.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, "kept", saved)
	assert.Empty(t, emitter.metrics)
}

func TestCollectorEmitFailureContinues(t *testing.T) {
	source := &staticSource{raw: snapshotWithBytes("1024")}
	emitter := &recordingEmitter{failOn: "lb_total_kbytes_in"}
	collector, _ := newTestCollector(t, source, emitter)

	err := collector.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 14 metrics failed")
	assert.Len(t, emitter.metrics, 14)

	saved, loadErr := collector.Store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, source.raw, saved)
}

func TestCollectorLocked(t *testing.T) {
	collector, _ := newTestCollector(t, &staticSource{raw: "header\n"}, &recordingEmitter{})
	lock, err := collector.Store.Lock()
	require.NoError(t, err)
	defer lock.Release()

	assert.ErrorIs(t, collector.Run(context.Background()), ErrLocked)
}

func TestNewCollector(t *testing.T) {
	config := DefaultConfig()
	config.Source.StatsFile = "/tmp/stat.csv"
	config.Emitter.DryRun = true
	collector, err := NewCollector(config)
	require.NoError(t, err)
	assert.IsType(t, &FileSource{}, collector.Source)
	assert.IsType(t, &LogEmitter{}, collector.Emitter)

	collector, err = NewCollector(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &SocketSource{}, collector.Source)
	assert.IsType(t, &GmetricEmitter{}, collector.Emitter)
	assert.Equal(t, ResetClamp, collector.Policy)
}
