// Package report renders decoded records, flow summaries and scan counters.
package report

import (
	"encoding/hex"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/flow"
	"firestige.xyz/echoscan/internal/scan"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Row is the flat view of a decoded record. ICMP fields are nil when the
// record carries no ICMP header.
type Row struct {
	Index          int     `json:"index" yaml:"index" mapstructure:"index"`
	Timestamp      float64 `json:"timestamp" yaml:"timestamp" mapstructure:"timestamp"`
	Time           string  `json:"time" yaml:"time" mapstructure:"time"`
	CaptureLen     uint32  `json:"caplen" yaml:"caplen" mapstructure:"caplen"`
	OrigLen        uint32  `json:"len" yaml:"len" mapstructure:"len"`
	Src            string  `json:"src" yaml:"src" mapstructure:"src"`
	Dst            string  `json:"dst" yaml:"dst" mapstructure:"dst"`
	TTL            uint8   `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	Protocol       uint8   `json:"protocol" yaml:"protocol" mapstructure:"protocol"`
	ICMPType       *uint8  `json:"icmp_type,omitempty" yaml:"icmp_type,omitempty" mapstructure:"icmp_type,omitempty"`
	ICMPCode       *uint8  `json:"icmp_code,omitempty" yaml:"icmp_code,omitempty" mapstructure:"icmp_code,omitempty"`
	ICMPName       string  `json:"icmp_name,omitempty" yaml:"icmp_name,omitempty" mapstructure:"icmp_name,omitempty"`
	ICMPID         *uint16 `json:"icmp_id,omitempty" yaml:"icmp_id,omitempty" mapstructure:"icmp_id,omitempty"`
	ICMPSeq        *uint16 `json:"icmp_seq,omitempty" yaml:"icmp_seq,omitempty" mapstructure:"icmp_seq,omitempty"`
	PayloadLen     int     `json:"payload_len" yaml:"payload_len" mapstructure:"payload_len"`
	Payload        string  `json:"payload,omitempty" yaml:"payload,omitempty" mapstructure:"payload,omitempty"`
	TransportError string  `json:"transport_error,omitempty" yaml:"transport_error,omitempty" mapstructure:"transport_error,omitempty"`
}

// NewRow flattens rec. With payload set the payload bytes are included as hex.
func NewRow(rec core.DecodedRecord, payload bool) Row {
	row := Row{
		Index:      rec.Index,
		Timestamp:  rec.Timestamp,
		Time:       rec.Time().Format(timeLayout),
		CaptureLen: rec.CaptureLen,
		OrigLen:    rec.OrigLen,
		Src:        rec.Src(),
		Dst:        rec.Dst(),
		TTL:        rec.Network.TTL,
		Protocol:   uint8(rec.Network.Protocol),
		PayloadLen: len(rec.Payload()),
	}
	if icmp := rec.ICMP; icmp != nil {
		typ, code, id, seq := icmp.Type, icmp.Code, icmp.ID, icmp.Seq
		row.ICMPType, row.ICMPCode, row.ICMPID, row.ICMPSeq = &typ, &code, &id, &seq
		row.ICMPName = icmp.TypeName()
	}
	if payload && row.PayloadLen > 0 {
		row.Payload = hex.EncodeToString(rec.Payload())
	}
	if rec.TransportErr != nil {
		row.TransportError = rec.TransportErr.Error()
	}
	return row
}

// FlowRow is a flow summary with its optional interval list.
type FlowRow struct {
	flow.Summary `yaml:",inline" mapstructure:",squash"`
	Intervals    []float64 `json:"intervals,omitempty" yaml:"intervals,omitempty" mapstructure:"intervals,omitempty"`
}

// NewFlowRow summarizes f.
func NewFlowRow(f flow.Flow, intervals bool) FlowRow {
	row := FlowRow{Summary: f.Summary()}
	if intervals {
		row.Intervals = f.Intervals()
	}
	return row
}

// StatsRow is the per-file counter summary.
type StatsRow struct {
	File            string `json:"file" yaml:"file" mapstructure:"file"`
	ScanID          string `json:"scan_id,omitempty" yaml:"scan_id,omitempty" mapstructure:"scan_id,omitempty"`
	Read            int    `json:"read" yaml:"read" mapstructure:"read"`
	Emitted         int    `json:"emitted" yaml:"emitted" mapstructure:"emitted"`
	Filtered        int    `json:"filtered" yaml:"filtered" mapstructure:"filtered"`
	LinkErrors      int    `json:"link_errors" yaml:"link_errors" mapstructure:"link_errors"`
	NetworkErrors   int    `json:"network_errors" yaml:"network_errors" mapstructure:"network_errors"`
	TransportErrors int    `json:"transport_errors" yaml:"transport_errors" mapstructure:"transport_errors"`
	ICMP            int    `json:"icmp" yaml:"icmp" mapstructure:"icmp"`
	TCP             int    `json:"tcp" yaml:"tcp" mapstructure:"tcp"`
	UDP             int    `json:"udp" yaml:"udp" mapstructure:"udp"`
	Other           int    `json:"other" yaml:"other" mapstructure:"other"`
	Inconsistent    int    `json:"inconsistent" yaml:"inconsistent" mapstructure:"inconsistent"`
	Truncated       bool   `json:"truncated" yaml:"truncated" mapstructure:"truncated"`
}

// NewStatsRow labels st with the file it came from.
func NewStatsRow(file, scanID string, st scan.Stats) StatsRow {
	return StatsRow{
		File:            file,
		ScanID:          scanID,
		Read:            st.Read,
		Emitted:         st.Emitted,
		Filtered:        st.Filtered,
		LinkErrors:      st.LinkErrors,
		NetworkErrors:   st.NetworkErrors,
		TransportErrors: st.TransportErrors,
		ICMP:            st.ICMPPackets,
		TCP:             st.TCPPackets,
		UDP:             st.UDPPackets,
		Other:           st.OtherPackets,
		Inconsistent:    st.Inconsistent,
		Truncated:       st.Truncated,
	}
}

// Fields converts a tagged row into log fields. Pointer values are
// dereferenced so they print as numbers.
func Fields(row interface{}) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	if err := mapstructure.Decode(row, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				delete(fields, k)
				continue
			}
			fields[k] = rv.Elem().Interface()
		}
	}
	return fields, nil
}
