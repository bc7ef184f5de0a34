// Package flow groups decoded records into flows and measures the timing
// between their packets.
package flow

import (
	"fmt"
	"math"
	"sort"

	"firestige.xyz/echoscan/internal/core"
)

// Key identifies a flow.
type Key string

// KeyFunc maps a record to the flow it belongs to.
type KeyFunc func(rec core.DecodedRecord) Key

// ByAddressPair keys records by "src -> dst".
func ByAddressPair(rec core.DecodedRecord) Key {
	return Key(rec.Src() + " -> " + rec.Dst())
}

// ByDestination keys records by destination address.
func ByDestination(rec core.DecodedRecord) Key {
	return Key(rec.Dst())
}

// KeyFuncByName resolves the names used in configuration.
func KeyFuncByName(name string) (KeyFunc, error) {
	switch name {
	case "pair", "":
		return ByAddressPair, nil
	case "destination":
		return ByDestination, nil
	default:
		return nil, fmt.Errorf("unknown flow key: %s (must be pair or destination)", name)
	}
}

// Flow is the records sharing one key, ordered by timestamp. Records with
// equal timestamps keep their capture order.
type Flow struct {
	Key     Key
	Records []core.DecodedRecord
}

// Intervals returns the seconds between consecutive records.
func (f Flow) Intervals() []float64 {
	if len(f.Records) < 2 {
		return nil
	}
	out := make([]float64, len(f.Records)-1)
	for i := 1; i < len(f.Records); i++ {
		out[i-1] = f.Records[i].Timestamp - f.Records[i-1].Timestamp
	}
	return out
}

// Summary describes a flow's size and timing.
type Summary struct {
	Key          Key     `mapstructure:"flow" json:"flow" yaml:"flow"`
	Packets      int     `mapstructure:"packets" json:"packets" yaml:"packets"`
	First        float64 `mapstructure:"first" json:"first" yaml:"first"`
	Last         float64 `mapstructure:"last" json:"last" yaml:"last"`
	Duration     float64 `mapstructure:"duration" json:"duration" yaml:"duration"`
	MinInterval  float64 `mapstructure:"min_interval" json:"min_interval" yaml:"min_interval"`
	MaxInterval  float64 `mapstructure:"max_interval" json:"max_interval" yaml:"max_interval"`
	MeanInterval float64 `mapstructure:"mean_interval" json:"mean_interval" yaml:"mean_interval"`
}

// Summary computes the flow summary. Interval fields are zero for flows
// with fewer than two records.
func (f Flow) Summary() Summary {
	s := Summary{Key: f.Key, Packets: len(f.Records)}
	if len(f.Records) == 0 {
		return s
	}
	s.First = f.Records[0].Timestamp
	s.Last = f.Records[len(f.Records)-1].Timestamp
	s.Duration = s.Last - s.First

	intervals := f.Intervals()
	if len(intervals) == 0 {
		return s
	}
	s.MinInterval, s.MaxInterval = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, d := range intervals {
		s.MinInterval = math.Min(s.MinInterval, d)
		s.MaxInterval = math.Max(s.MaxInterval, d)
		sum += d
	}
	s.MeanInterval = sum / float64(len(intervals))
	return s
}

// Table accumulates records into flows. Flows are listed in the order their
// first record was added.
type Table struct {
	key   KeyFunc
	index map[Key]int
	flows []Flow
}

// NewTable creates a table keyed by key.
func NewTable(key KeyFunc) *Table {
	return &Table{key: key, index: make(map[Key]int)}
}

// Add files rec under its flow.
func (t *Table) Add(rec core.DecodedRecord) {
	k := t.key(rec)
	i, ok := t.index[k]
	if !ok {
		i = len(t.flows)
		t.index[k] = i
		t.flows = append(t.flows, Flow{Key: k})
	}
	t.flows[i].Records = append(t.flows[i].Records, rec)
}

// Len returns the number of flows.
func (t *Table) Len() int {
	return len(t.flows)
}

// Flows returns flows with at least minPackets records, each sorted by
// timestamp.
func (t *Table) Flows(minPackets int) []Flow {
	out := make([]Flow, 0, len(t.flows))
	for _, f := range t.flows {
		if len(f.Records) < minPackets {
			continue
		}
		recs := append([]core.DecodedRecord(nil), f.Records...)
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })
		out = append(out, Flow{Key: f.Key, Records: recs})
	}
	return out
}

// Group splits records into flows by key.
func Group(records []core.DecodedRecord, key KeyFunc) []Flow {
	t := NewTable(key)
	for _, rec := range records {
		t.Add(rec)
	}
	return t.Flows(0)
}
