// Package passive evaluates a signature's passive rules against meta fields
// that were already retrieved with the initial response.
package passive

import (
	"fmt"

	"github.com/vulntor/webscope/pkg/finding"
	"github.com/vulntor/webscope/pkg/signature"
)

// Meta looks up a meta field by case-insensitive name.
type Meta interface {
	Meta(field string) (string, bool)
}

// MetaMap is a Meta backed by a map with lowercase keys.
type MetaMap map[string]string

// Meta implements Meta.
func (m MetaMap) Meta(field string) (string, bool) {
	v, ok := m[field]
	return v, ok
}

// Error reports a passive rule whose pattern could not be evaluated.
type Error struct {
	Signature string
	Rule      int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("signature %s: passive[%d]: %v", e.Signature, e.Rule, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detect runs every passive rule of sig against meta. A base pattern match
// yields a name finding; a refine match additionally yields one finding per
// mapped capture group with a non-empty value.
func Detect(sig *signature.Signature, meta Meta) ([]finding.Finding, error) {
	if sig == nil {
		return nil, nil
	}

	var out []finding.Finding
	for i := range sig.Passive {
		rule := &sig.Passive[i]

		value, ok := meta.Meta(rule.Field)
		if !ok {
			continue
		}

		matched, err := rule.Pattern.MatchString(value)
		if err != nil {
			return nil, &Error{Signature: sig.Name, Rule: i, Err: err}
		}
		if !matched {
			continue
		}

		source := fmt.Sprintf("passive[%d]:%s", i, rule.Field)
		out = append(out, finding.Finding{
			Signature: sig.Name,
			Kind:      finding.KindName,
			Value:     rule.Label,
			Source:    source,
			Certainty: rule.Certainty,
		})

		if rule.Refine == nil {
			continue
		}
		groups, ok, err := rule.Refine.FindSubmatch(value)
		if err != nil {
			return nil, &Error{Signature: sig.Name, Rule: i, Err: err}
		}
		if !ok {
			continue
		}
		for _, c := range rule.Captures {
			if c.Group >= len(groups) || groups[c.Group] == "" {
				continue
			}
			out = append(out, finding.Finding{
				Signature: sig.Name,
				Kind:      c.Kind,
				Value:     groups[c.Group],
				Source:    source,
				Certainty: rule.Certainty,
			})
		}
	}
	return out, nil
}
