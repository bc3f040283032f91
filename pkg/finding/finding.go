// Package finding defines the evidence units produced while evaluating
// signatures and the deduplicating set the aggregator merges them into.
package finding

import "fmt"

// Kind classifies what a Finding asserts about the target.
type Kind string

const (
	// KindName records that a product was recognized.
	KindName Kind = "name"
	// KindVersion carries an extracted version string.
	KindVersion  Kind = "version"
	KindOS       Kind = "os"
	KindString   Kind = "string"
	KindModule   Kind = "module"
	KindModel    Kind = "model"
	KindFirmware Kind = "firmware"
	KindAccount  Kind = "account"
	KindFilepath Kind = "filepath"
)

// DefaultCertainty is assigned to rules that do not declare a certainty.
const DefaultCertainty = 100

var knownKinds = map[Kind]bool{
	KindName:     true,
	KindVersion:  true,
	KindOS:       true,
	KindString:   true,
	KindModule:   true,
	KindModel:    true,
	KindFirmware: true,
	KindAccount:  true,
	KindFilepath: true,
}

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	return knownKinds[k]
}

// ParseKind converts a raw attribute name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown finding kind %q", s)
	}
	return k, nil
}

// Finding is one unit of evidence about a target.
type Finding struct {
	Signature string `json:"signature"`
	Kind      Kind   `json:"kind"`
	Value     string `json:"value"`
	Source    string `json:"source"`
	Certainty int    `json:"certainty"`
}

type key struct {
	kind  Kind
	value string
}

// Set keeps Findings in insertion order, dropping later duplicates of the same
// (kind, value) pair. The zero value is ready to use.
type Set struct {
	items []Finding
	index map[key]struct{}
}

// Add inserts f unless an equal (kind, value) pair is already present.
// It reports whether f was inserted.
func (s *Set) Add(f Finding) bool {
	if s.index == nil {
		s.index = make(map[key]struct{})
	}
	k := key{kind: f.Kind, value: f.Value}
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.items = append(s.items, f)
	return true
}

// AddAll inserts every finding in order.
func (s *Set) AddAll(fs []Finding) {
	for _, f := range fs {
		s.Add(f)
	}
}

// Len returns the number of distinct findings.
func (s *Set) Len() int {
	return len(s.items)
}

// Findings returns a copy of the findings in insertion order.
func (s *Set) Findings() []Finding {
	return append([]Finding(nil), s.items...)
}

// MaxCertainty returns the highest certainty in the set, or 0 when empty.
func (s *Set) MaxCertainty() int {
	best := 0
	for _, f := range s.items {
		if f.Certainty > best {
			best = f.Certainty
		}
	}
	return best
}

// Values returns the values of all findings of kind k in insertion order.
func (s *Set) Values(k Kind) []string {
	var out []string
	for _, f := range s.items {
		if f.Kind == k {
			out = append(out, f.Value)
		}
	}
	return out
}
