// Package filter selects which records a scan keeps.
package filter

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/core"
)

// Filter decides whether a record is kept. MatchRaw sees the link-layer frame
// before decoding, so records it rejects are never decoded. Match sees the
// decoded record.
type Filter interface {
	MatchRaw(linkType layers.LinkType, data []byte) bool
	Match(rec core.DecodedRecord) bool
}

// Chain keeps a record only if every filter in it does. An empty chain keeps
// everything.
type Chain []Filter

// NewChain builds a chain, dropping nil filters.
func NewChain(filters ...Filter) Chain {
	chain := make(Chain, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			chain = append(chain, f)
		}
	}
	return chain
}

func (c Chain) MatchRaw(linkType layers.LinkType, data []byte) bool {
	for _, f := range c {
		if !f.MatchRaw(linkType, data) {
			return false
		}
	}
	return true
}

func (c Chain) Match(rec core.DecodedRecord) bool {
	for _, f := range c {
		if !f.Match(rec) {
			return false
		}
	}
	return true
}

// ICMPTypeFilter keeps records whose ICMP header decoded with one of the
// listed types.
type ICMPTypeFilter struct {
	types [256]bool
}

// ICMPTypes returns a filter for the given ICMP types. With no types it
// returns nil, which NewChain drops.
func ICMPTypes(types ...uint8) Filter {
	if len(types) == 0 {
		return nil
	}
	f := &ICMPTypeFilter{}
	for _, t := range types {
		f.types[t] = true
	}
	return f
}

func (f *ICMPTypeFilter) MatchRaw(layers.LinkType, []byte) bool { return true }

func (f *ICMPTypeFilter) Match(rec core.DecodedRecord) bool {
	return rec.ICMP != nil && f.types[rec.ICMP.Type]
}
