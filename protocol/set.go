package protocol

import (
	"fmt"
	"strings"
)

// PayloadSet is a bitset over payload type numbers. Types outside
// [0, 64) do not fit and must be rejected at the decoder boundary.
type PayloadSet uint64

// MakeSet builds a set from payload types; types that do not fit are
// silently ignored (callers validate first).
func MakeSet(types ...PayloadType) (s PayloadSet) {
	for _, t := range types {
		s = s.Add(t)
	}
	return
}

func (s PayloadSet) Add(t PayloadType) PayloadSet {
	if t >= 64 {
		return s
	}
	return s | 1<<uint(t)
}

func (s PayloadSet) Has(t PayloadType) bool {
	if t >= 64 {
		return false
	}
	return s&(1<<uint(t)) != 0
}

func (s PayloadSet) Union(o PayloadSet) PayloadSet     { return s | o }
func (s PayloadSet) Intersect(o PayloadSet) PayloadSet { return s & o }
func (s PayloadSet) Minus(o PayloadSet) PayloadSet     { return s &^ o }
func (s PayloadSet) IsEmpty() bool                     { return s == 0 }

func (s PayloadSet) String() string {
	if s == 0 {
		return "{}"
	}
	var names []string
	for t := PayloadType(0); t < 64; t++ {
		if s.Has(t) {
			names = append(names, t.String())
		}
	}
	return fmt.Sprintf("{%s}", strings.Join(names, ","))
}

// Sets used by the payload verifier; rfc7296 2.5 & 1.2.
var (
	// EverywherePayloads can appear in any message
	EverywherePayloads = MakeSet(PayloadTypeN, PayloadTypeV)
	// RepeatablePayloads may legally occur more than once
	RepeatablePayloads = MakeSet(PayloadTypeN, PayloadTypeD, PayloadTypeCP,
		PayloadTypeV, PayloadTypeCERT, PayloadTypeCERTREQ)
)
