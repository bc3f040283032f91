package signature

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/vulntor/webscope/pkg/finding"
)

var validate = validator.New()

// Compile validates def and turns it into an immutable Signature. The origin
// is recorded on the result for error reporting.
func Compile(def Definition, origin string) (*Signature, error) {
	if err := validate.Struct(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is empty", ErrInvalidDefinition)
	}

	if def.Version != "" {
		if _, err := semver.NewVersion(def.Version); err != nil {
			return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidDefinition, def.Version, err)
		}
	}

	sig := &Signature{
		Name: name,
		Metadata: Metadata{
			Author:      def.Author,
			Version:     def.Version,
			Description: def.Description,
			Website:     def.Website,
			Tags:        append([]string(nil), def.Tags...),
			Examples:    append([]string(nil), def.Examples...),
		},
		Origin: origin,
	}

	for i, rd := range def.Matches {
		rule, err := compileRule(rd)
		if err != nil {
			return nil, fmt.Errorf("%w: matches[%d]: %v", ErrInvalidDefinition, i, err)
		}
		sig.Rules = append(sig.Rules, rule)
	}

	for i, pd := range def.Passive {
		rule, err := compilePassive(pd)
		if err != nil {
			return nil, fmt.Errorf("%w: passive[%d]: %v", ErrInvalidDefinition, i, err)
		}
		sig.Passive = append(sig.Passive, rule)
	}

	return sig, nil
}

func compileRule(rd RuleDefinition) (Rule, error) {
	rule := Rule{
		Kind:      RuleKind(rd.Kind),
		Label:     rd.Name,
		Certainty: certaintyOrDefault(rd.Certainty),
	}

	switch rule.Kind {
	case KindURLText:
		path, err := normalizePath(rd.URL)
		if err != nil {
			return Rule{}, err
		}
		rule.Path = path
		switch {
		case rd.Text != "" && rd.Regex != "":
			return Rule{}, fmt.Errorf("url_text accepts either text or regex, not both")
		case rd.Text != "":
			rule.Text = rd.Text
		case rd.Regex != "":
			re, err := CompilePattern(rd.Regex, rd.Anchored)
			if err != nil {
				return Rule{}, err
			}
			rule.Regex = re
		default:
			return Rule{}, fmt.Errorf("url_text requires text or regex")
		}
		if rule.Label == "" {
			rule.Label = "url " + path
		}

	case KindURLMD5:
		path, err := normalizePath(rd.URL)
		if err != nil {
			return Rule{}, err
		}
		if rd.MD5 == "" {
			return Rule{}, fmt.Errorf("url_md5 requires md5")
		}
		rule.Path = path
		rule.MD5 = strings.ToLower(rd.MD5)
		if rule.Label == "" {
			rule.Label = "md5 " + path
		}

	case KindHeaderRegex:
		field := normalizeField(rd.Field)
		if field == "" {
			return Rule{}, fmt.Errorf("header_regex requires field")
		}
		if rd.Regex == "" {
			return Rule{}, fmt.Errorf("header_regex requires regex")
		}
		re, err := CompilePattern(rd.Regex, rd.Anchored)
		if err != nil {
			return Rule{}, err
		}
		rule.Field = field
		rule.Regex = re
		rule.Capture = finding.KindVersion
		if rd.Capture != "" {
			kind, err := finding.ParseKind(rd.Capture)
			if err != nil {
				return Rule{}, err
			}
			if kind == finding.KindName {
				return Rule{}, fmt.Errorf("capture cannot map to %q", kind)
			}
			rule.Capture = kind
		}
		if rule.Label == "" {
			rule.Label = field + " header"
		}

	case KindCookie:
		if strings.TrimSpace(rd.Cookie) == "" {
			return Rule{}, fmt.Errorf("cookie requires cookie name")
		}
		rule.Cookie = strings.TrimSpace(rd.Cookie)
		if rd.Regex != "" {
			re, err := CompilePattern(rd.Regex, rd.Anchored)
			if err != nil {
				return Rule{}, err
			}
			rule.Regex = re
		}
		if rule.Label == "" {
			rule.Label = "cookie " + rule.Cookie
		}

	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", rd.Kind)
	}

	return rule, nil
}

func compilePassive(pd PassiveDefinition) (PassiveRule, error) {
	field := normalizeField(pd.Field)
	base, err := CompilePattern(pd.Pattern, false)
	if err != nil {
		return PassiveRule{}, err
	}

	rule := PassiveRule{
		Label:     pd.Name,
		Field:     field,
		Pattern:   base,
		Certainty: certaintyOrDefault(pd.Certainty),
	}
	if rule.Label == "" {
		rule.Label = field + " header"
	}

	if pd.Refine == "" {
		if len(pd.Captures) > 0 {
			return PassiveRule{}, fmt.Errorf("captures require a refine pattern")
		}
		return rule, nil
	}

	refine, err := CompilePattern(pd.Refine, false)
	if err != nil {
		return PassiveRule{}, err
	}
	rule.Refine = refine

	captures := pd.Captures
	if len(captures) == 0 && refine.Groups() > 0 {
		captures = map[int]string{1: string(finding.KindVersion)}
	}

	groups := make([]int, 0, len(captures))
	for g := range captures {
		groups = append(groups, g)
	}
	sort.Ints(groups)

	for _, g := range groups {
		if g > refine.Groups() {
			return PassiveRule{}, fmt.Errorf("capture group %d exceeds %d groups in refine pattern", g, refine.Groups())
		}
		kind, err := finding.ParseKind(captures[g])
		if err != nil {
			return PassiveRule{}, err
		}
		if kind == finding.KindName {
			return PassiveRule{}, fmt.Errorf("capture cannot map to %q", kind)
		}
		rule.Captures = append(rule.Captures, Capture{Group: g, Kind: kind})
	}

	return rule, nil
}

func normalizeField(field string) string {
	return strings.ToLower(strings.TrimSpace(field))
}

// normalizePath accepts a path with optional query string and rejects absolute
// URLs; rules always address the scanned host.
func normalizePath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("url %q: %w", raw, err)
	}
	if u.IsAbs() || u.Host != "" {
		return "", fmt.Errorf("url %q must be a path on the target", raw)
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return raw, nil
}

func certaintyOrDefault(c int) int {
	if c == 0 {
		return finding.DefaultCertainty
	}
	return c
}
