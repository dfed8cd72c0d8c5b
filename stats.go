package lbstats

import (
	"strings"
)

const (
	TotalBackend = "total"

	backendRow  = "BACKEND"
	frontendRow = "FRONTEND"

	statusUp   = "UP"
	statusDown = "DOWN"
)

// Column positions in the "show stat" CSV.
const (
	colProxyName   = 0
	colServiceName = 1
	colCurSessions = 4
	colMaxSessions = 5
	colBytesIn     = 8
	colBytesOut    = 9
	colStatus      = 17
	colRate        = 33
)

// BackendStats holds the counters of one proxy group, or of the synthetic
// total entry built from FRONTEND rows.
type BackendStats struct {
	Name            string
	RequestRate     int64
	CurrentSessions int64
	MaxSessions     int64
	KBytesIn        int64
	KBytesOut       int64
	Sessions        []int64
	ServersUp       int64
	ServersDown     int64
}

// StatsTable is a set of BackendStats keyed by backend name which keeps the
// order in which backends were first seen.
type StatsTable struct {
	names    []string
	backends map[string]*BackendStats
}

func NewStatsTable() *StatsTable {
	return &StatsTable{backends: make(map[string]*BackendStats)}
}

func (t *StatsTable) Len() int {
	return len(t.names)
}

// Names returns backend names in first-seen order.
func (t *StatsTable) Names() []string {
	names := make([]string, len(t.names))
	copy(names, t.names)
	return names
}

func (t *StatsTable) Get(name string) (*BackendStats, bool) {
	if t == nil {
		return nil, false
	}
	stats, ok := t.backends[name]
	return stats, ok
}

func (t *StatsTable) getOrCreate(name string) *BackendStats {
	stats, ok := t.backends[name]
	if !ok {
		stats = &BackendStats{Name: name}
		t.backends[name] = stats
		t.names = append(t.names, name)
	}
	return stats
}

// Parse builds a StatsTable from raw "show stat" output. The first line is
// the CSV header and is dropped. Parse never fails: unknown or missing
// values count as zero.
func Parse(raw string) *StatsTable {
	table := NewStatsTable()
	if raw == "" {
		return table
	}
	lines := strings.Split(raw, "\n")
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		table.addRow(strings.Split(line, ","))
	}
	return table
}

func (t *StatsTable) addRow(fields []string) {
	if len(fields) < 2 {
		return
	}
	switch fields[colServiceName] {
	case backendRow:
		t.setTotals(fields)
	case frontendRow:
		t.addFrontendTotals(fields)
	default:
		t.addServer(fields)
	}
}

func (t *StatsTable) setTotals(fields []string) {
	stats := t.getOrCreate(fields[colProxyName])
	stats.RequestRate = intField(fields, colRate)
	stats.CurrentSessions = intField(fields, colCurSessions)
	stats.MaxSessions = intField(fields, colMaxSessions)
	stats.KBytesIn = intField(fields, colBytesIn) / 1024
	stats.KBytesOut = intField(fields, colBytesOut) / 1024
}

func (t *StatsTable) addFrontendTotals(fields []string) {
	stats := t.getOrCreate(TotalBackend)
	stats.RequestRate += intField(fields, colRate)
	stats.CurrentSessions += intField(fields, colCurSessions)
	stats.MaxSessions += intField(fields, colMaxSessions)
	stats.KBytesIn += intField(fields, colBytesIn) / 1024
	stats.KBytesOut += intField(fields, colBytesOut) / 1024
}

func (t *StatsTable) addServer(fields []string) {
	stats := t.getOrCreate(fields[colProxyName])
	stats.Sessions = append(stats.Sessions, intField(fields, colCurSessions))
	switch field(fields, colStatus) {
	case statusUp:
		stats.ServersUp++
	case statusDown:
		stats.ServersDown++
	}
}

func field(fields []string, idx int) string {
	if idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

func intField(fields []string, idx int) int64 {
	return parseLeadingInt(field(fields, idx))
}

// parseLeadingInt reads an optional sign followed by the leading run of
// digits, so "12ms" is 12 and "abc" is 0. Values overflowing int64 are 0.
func parseLeadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		d := int64(c - '0')
		if n > (maxInt64-d)/10 {
			return 0
		}
		n = n*10 + d
	}
	if neg {
		return -n
	}
	return n
}

const maxInt64 = int64(^uint64(0) >> 1)

// MaxServerSessions returns the largest per-server session count; ok is false
// when the backend has no server rows.
func (b *BackendStats) MaxServerSessions() (max int64, ok bool) {
	if len(b.Sessions) == 0 {
		return 0, false
	}
	max = b.Sessions[0]
	for _, s := range b.Sessions[1:] {
		if s > max {
			max = s
		}
	}
	return max, true
}

// AvgServerSessions returns the integer mean of per-server session counts.
func (b *BackendStats) AvgServerSessions() (avg int64, ok bool) {
	if len(b.Sessions) == 0 {
		return 0, false
	}
	var sum int64
	for _, s := range b.Sessions {
		sum += s
	}
	return sum / int64(len(b.Sessions)), true
}
