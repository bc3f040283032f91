package signature

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single regex evaluation so a pathological pattern
// cannot stall a scan.
const MatchTimeout = time.Second

// Pattern is a compiled signature regular expression. Signature patterns come
// from a Perl-flavoured corpus, so they are compiled with regexp2 rather than
// the RE2-only standard library engine.
type Pattern struct {
	expr     string
	anchored bool
	re       *regexp2.Regexp
	groups   int
}

// CompilePattern compiles expr. When anchored is true the whole input must
// match. RE2 syntax is tried first; patterns that need backtracking features
// fall back to the default regexp2 mode.
func CompilePattern(expr string, anchored bool) (*Pattern, error) {
	source := expr
	if anchored {
		source = `\A(?:` + expr + `)\z`
	}

	re, err := regexp2.Compile(source, regexp2.RE2)
	if err != nil {
		re, err = regexp2.Compile(source, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
		}
	}
	re.MatchTimeout = MatchTimeout

	return &Pattern{
		expr:     expr,
		anchored: anchored,
		re:       re,
		groups:   len(re.GetGroupNumbers()) - 1,
	}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(expr string, anchored bool) *Pattern {
	p, err := CompilePattern(expr, anchored)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as written in the definition.
func (p *Pattern) String() string {
	return p.expr
}

// Anchored reports whether the pattern must match the whole input.
func (p *Pattern) Anchored() bool {
	return p.anchored
}

// Groups returns the number of capture groups, excluding the whole match.
func (p *Pattern) Groups() int {
	return p.groups
}

// MatchString reports whether s contains a match.
func (p *Pattern) MatchString(s string) (bool, error) {
	return p.re.MatchString(s)
}

// FindSubmatch returns the whole match at index 0 followed by each capture
// group. Groups that did not participate are empty strings. The boolean is
// false when s does not match.
func (p *Pattern) FindSubmatch(s string) ([]string, bool, error) {
	m, err := p.re.FindStringMatch(s)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		return nil, false, nil
	}

	out := make([]string, p.groups+1)
	out[0] = m.String()
	for i := 1; i <= p.groups; i++ {
		g := m.GroupByNumber(i)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		out[i] = g.String()
	}
	return out, true, nil
}
