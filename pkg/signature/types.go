// Package signature holds the signature model, the definition records it is
// compiled from, and the Registry that indexes compiled signatures.
package signature

import (
	"github.com/vulntor/webscope/pkg/finding"
)

// RuleKind tags the variant of a match rule.
type RuleKind string

const (
	// KindURLText expects literal text or a regex in the body served at a path.
	KindURLText RuleKind = "url_text"
	// KindHeaderRegex applies a regex to a single meta field.
	KindHeaderRegex RuleKind = "header_regex"
	// KindCookie expects a named cookie, optionally with a matching value.
	KindCookie RuleKind = "cookie"
	// KindURLMD5 compares the MD5 digest of the body served at a path.
	KindURLMD5 RuleKind = "url_md5"
)

// Metadata describes a signature for humans. Examples are documentation only
// and never evaluated.
type Metadata struct {
	Author      string
	Version     string
	Description string
	Website     string
	Tags        []string
	Examples    []string
}

// Rule is one compiled match rule. Which fields are meaningful depends on Kind.
type Rule struct {
	Kind      RuleKind
	Label     string
	Path      string   // url_text, url_md5
	Text      string   // url_text literal
	Regex     *Pattern // url_text regex, header_regex, cookie value
	Field     string   // header_regex, lowercase
	Capture   finding.Kind
	Cookie    string // cookie name
	MD5       string // url_md5, lowercase hex
	Certainty int
}

// Capture maps a regex capture group onto a finding kind.
type Capture struct {
	Group int
	Kind  finding.Kind
}

// PassiveRule inspects an already retrieved meta field.
type PassiveRule struct {
	Label     string
	Field     string
	Pattern   *Pattern
	Refine    *Pattern
	Captures  []Capture
	Certainty int
}

// Signature is an immutable, compiled description of one product.
type Signature struct {
	Name     string
	Metadata Metadata
	Rules    []Rule
	Passive  []PassiveRule
	Origin   string
}

// Inert reports whether the signature can never produce a finding.
func (s *Signature) Inert() bool {
	return len(s.Rules) == 0 && len(s.Passive) == 0
}

// Definition is the raw, serializable form of a signature as stored in YAML or
// JSON sources.
type Definition struct {
	Name        string              `yaml:"name" json:"name" validate:"required"`
	Author      string              `yaml:"author,omitempty" json:"author,omitempty"`
	Version     string              `yaml:"version,omitempty" json:"version,omitempty"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Website     string              `yaml:"website,omitempty" json:"website,omitempty" validate:"omitempty,url"`
	Tags        []string            `yaml:"tags,omitempty" json:"tags,omitempty"`
	Examples    []string            `yaml:"examples,omitempty" json:"examples,omitempty"`
	Matches     []RuleDefinition    `yaml:"matches,omitempty" json:"matches,omitempty" validate:"dive"`
	Passive     []PassiveDefinition `yaml:"passive,omitempty" json:"passive,omitempty" validate:"dive"`
}

// RuleDefinition is the raw form of a match rule.
type RuleDefinition struct {
	Kind      string `yaml:"kind" json:"kind" validate:"required,oneof=url_text header_regex cookie url_md5"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	URL       string `yaml:"url,omitempty" json:"url,omitempty"`
	Text      string `yaml:"text,omitempty" json:"text,omitempty"`
	Regex     string `yaml:"regex,omitempty" json:"regex,omitempty"`
	Field     string `yaml:"field,omitempty" json:"field,omitempty"`
	Anchored  bool   `yaml:"anchored,omitempty" json:"anchored,omitempty"`
	Capture   string `yaml:"capture,omitempty" json:"capture,omitempty"`
	Cookie    string `yaml:"cookie,omitempty" json:"cookie,omitempty"`
	MD5       string `yaml:"md5,omitempty" json:"md5,omitempty" validate:"omitempty,hexadecimal,len=32"`
	Certainty int    `yaml:"certainty,omitempty" json:"certainty,omitempty" validate:"omitempty,min=1,max=100"`
}

// PassiveDefinition is the raw form of a passive rule. Captures maps capture
// group numbers of Refine onto finding kinds.
type PassiveDefinition struct {
	Name      string         `yaml:"name,omitempty" json:"name,omitempty"`
	Field     string         `yaml:"field" json:"field" validate:"required"`
	Pattern   string         `yaml:"pattern" json:"pattern" validate:"required"`
	Refine    string         `yaml:"refine,omitempty" json:"refine,omitempty"`
	Captures  map[int]string `yaml:"captures,omitempty" json:"captures,omitempty" validate:"dive,keys,min=1,endkeys,required"`
	Certainty int            `yaml:"certainty,omitempty" json:"certainty,omitempty" validate:"omitempty,min=1,max=100"`
}
