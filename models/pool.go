package models

import (
	"sort"
	"strings"
)

// PoolID names a sellable pool inside one event. The prefix carries the pool kind.
type PoolID string

const (
	PoolKindEvent      = "event"
	PoolKindTicketType = "type"
	PoolKindTable      = "table"
	PoolKindBundle     = "bundle"
)

func EventPool(eventID string) PoolID     { return PoolID(PoolKindEvent + ":" + eventID) }
func TicketTypePool(typeID string) PoolID { return PoolID(PoolKindTicketType + ":" + typeID) }
func TablePool(tableID string) PoolID     { return PoolID(PoolKindTable + ":" + tableID) }
func BundlePool(bundleID string) PoolID   { return PoolID(PoolKindBundle + ":" + bundleID) }

func (p PoolID) Kind() string {
	kind, _, _ := strings.Cut(string(p), ":")
	return kind
}

func (p PoolID) Ref() string {
	_, ref, _ := strings.Cut(string(p), ":")
	return ref
}

// Usage values say which counter of a ticket type pool a deduction lands on.
const (
	UsageIndividual = ""
	UsageTable      = "table"
	UsageBundle     = "bundle"
)

type PoolDeduction struct {
	Pool     PoolID `json:"pool"`
	Usage    string `json:"usage,omitempty"`
	Quantity int    `json:"quantity"`
}

// MergeDeductions folds repeated (pool, usage) pairs together and sorts the
// result by pool id, then usage. The event pool sorts last so a shortfall in
// a narrower pool is reported against that pool.
func MergeDeductions(in []PoolDeduction) []PoolDeduction {
	type key struct {
		pool  PoolID
		usage string
	}
	totals := make(map[key]int, len(in))
	for _, d := range in {
		totals[key{d.Pool, d.Usage}] += d.Quantity
	}
	out := make([]PoolDeduction, 0, len(totals))
	for k, qty := range totals {
		out = append(out, PoolDeduction{Pool: k.pool, Usage: k.usage, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].Pool.Kind() == PoolKindEvent, out[j].Pool.Kind() == PoolKindEvent
		if ei != ej {
			return ej
		}
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return out[i].Usage < out[j].Usage
	})
	return out
}
