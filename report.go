package lbstats

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type ResetPolicy string

const (
	// ResetClamp reports a decreased cumulative counter as a zero delta.
	ResetClamp ResetPolicy = "clamp"
	// ResetRaw reports a decreased cumulative counter as a negative delta.
	ResetRaw ResetPolicy = "raw"
)

func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch ResetPolicy(strings.ToLower(s)) {
	case "", ResetClamp:
		return ResetClamp, nil
	case ResetRaw:
		return ResetRaw, nil
	}
	return "", errors.Wrapf(ErrUnknownResetPolicy, "%q", s)
}

// BackendReport is the per-run view of one backend: byte deltas against the
// previous snapshot plus the absolute gauges of the current one.
type BackendReport struct {
	Backend         string
	KBytesInDelta   int64
	KBytesOutDelta  int64
	CurrentSessions int64
	RequestRate     int64
	MaxSessions     int64
	// CounterReset is set when a byte counter went backwards since the
	// previous snapshot.
	CounterReset    bool

	// Per-server values, never set for the total backend.
	HasServers           bool
	MaxSessionsPerServer int64
	AvgSessionsPerServer int64
	ServersUp            int64
	ServersDown          int64
}

func (r BackendReport) IsTotal() bool {
	return r.Backend == TotalBackend
}

// Diff builds one report per backend of current, in current's order.
// Backends missing from previous use a zero baseline.
func Diff(current, previous *StatsTable, policy ResetPolicy) []BackendReport {
	reports := make([]BackendReport, 0, current.Len())
	for _, name := range current.names {
		stats := current.backends[name]
		var prevIn, prevOut int64
		if prev, ok := previous.Get(name); ok {
			prevIn, prevOut = prev.KBytesIn, prev.KBytesOut
		}
		report := BackendReport{
			Backend:         name,
			KBytesInDelta:   stats.KBytesIn - prevIn,
			KBytesOutDelta:  stats.KBytesOut - prevOut,
			CurrentSessions: stats.CurrentSessions,
			RequestRate:     stats.RequestRate,
			MaxSessions:     stats.MaxSessions,
		}
		if report.KBytesInDelta < 0 || report.KBytesOutDelta < 0 {
			report.CounterReset = true
			if policy != ResetRaw {
				report.KBytesInDelta = clampZero(report.KBytesInDelta)
				report.KBytesOutDelta = clampZero(report.KBytesOutDelta)
			}
		}
		if !report.IsTotal() {
			report.ServersUp = stats.ServersUp
			report.ServersDown = stats.ServersDown
			report.MaxSessionsPerServer, report.HasServers = stats.MaxServerSessions()
			report.AvgSessionsPerServer, _ = stats.AvgServerSessions()
		}
		reports = append(reports, report)
	}
	return reports
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Metric is a single value handed to an Emitter.
type Metric struct {
	Name  string
	Type  string
	Unit  string
	TTL   int
	Value int64
}

const (
	MetricTypeInt32 = "int32"
	MetricTypeUint8 = "uint8"

	unitKilobytes = "Kilobytes"
	DefaultTTL    = 60
)

func MetricName(backend, suffix string) string {
	return "lb_" + backend + "_" + suffix
}

// Metrics returns the metrics of the report in emission order. Per-server
// metrics are left out for the total backend, and the per-server session
// metrics also for backends without server rows.
func (r BackendReport) Metrics(ttl int) []Metric {
	kb := func(suffix string, v int64) Metric {
		return Metric{Name: MetricName(r.Backend, suffix), Type: MetricTypeInt32, Unit: unitKilobytes, TTL: ttl, Value: v}
	}
	count := func(suffix string, v int64) Metric {
		return Metric{Name: MetricName(r.Backend, suffix), Type: MetricTypeUint8, TTL: ttl, Value: v}
	}
	metrics := []Metric{
		kb("kbytes_in", r.KBytesInDelta),
		kb("kbytes_out", r.KBytesOutDelta),
		count("req_per_s", r.RequestRate),
		count("current_sess", r.CurrentSessions),
		count("sess_max", r.MaxSessions),
	}
	if r.IsTotal() {
		return metrics
	}
	if r.HasServers {
		metrics = append(metrics,
			count("avg_sess_per_server", r.AvgSessionsPerServer),
			count("max_sess_per_server", r.MaxSessionsPerServer),
		)
	}
	return append(metrics,
		count("servers_up", r.ServersUp),
		count("servers_down", r.ServersDown),
	)
}

// WriteText prints the human readable report, one block per backend.
func WriteText(w io.Writer, reports []BackendReport) error {
	var sb strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&sb, "Backend %s\n", r.Backend)
		fmt.Fprintf(&sb, "Bytes IN: %d KB\n", r.KBytesInDelta)
		fmt.Fprintf(&sb, "Bytes OUT: %d KB\n", r.KBytesOutDelta)
		fmt.Fprintf(&sb, "Current sessions: %d\n", r.CurrentSessions)
		fmt.Fprintf(&sb, "Current request rate per second: %d\n", r.RequestRate)
		fmt.Fprintf(&sb, "Max sessions total: %d\n", r.MaxSessions)
		if !r.IsTotal() {
			if r.HasServers {
				fmt.Fprintf(&sb, "Max sessions per server: %d\n", r.MaxSessionsPerServer)
				fmt.Fprintf(&sb, "Avg sessions per server: %d\n", r.AvgSessionsPerServer)
			}
			fmt.Fprintf(&sb, "Servers UP: %d\n", r.ServersUp)
			fmt.Fprintf(&sb, "Servers DOWN: %d\n", r.ServersDown)
		}
		sb.WriteString("\n")
	}
	_, err := io.WriteString(w, sb.String())
	return errors.Wrap(err, "write report")
}
